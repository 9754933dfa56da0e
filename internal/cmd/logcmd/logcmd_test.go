package logcmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/flolog/internal/logfile"
	"github.com/rzbill/flolog/internal/record"
)

type entry struct {
	topic uint64
	ts    int64
	data  string
}

func writeLog(t *testing.T, path string, entries ...entry) {
	t.Helper()
	w, err := logfile.Create(path)
	require.NoError(t, err)
	for _, e := range entries {
		_, err := w.Write(e.topic, e.ts, []byte(e.data))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

// run executes the root command with a fresh data dir unless args set one.
func run(t *testing.T, dataDir, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRoot()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--data-dir", dataDir, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func payloads(t *testing.T, out string) []string {
	t.Helper()
	var got []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		require.Len(t, fields, 4, "line %q", line)
		got = append(got, fields[3])
	}
	return got
}

func TestCatMergesByTimestamp(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.flolog")
	b := filepath.Join(dir, "b.flolog.gz")
	writeLog(t, a, entry{1, 10, "a10"}, entry{1, 30, "a30"})
	writeLog(t, b, entry{2, 20, "b20"}, entry{2, 40, "b40"})

	out, err := run(t, dir, "", "cat", a, b)
	require.NoError(t, err)
	require.Equal(t, []string{"a10", "b20", "a30", "b40"}, payloads(t, out))

	out, err = run(t, dir, "", "cat", "--limit", "2", b, a)
	require.NoError(t, err)
	require.Equal(t, []string{"a10", "b20"}, payloads(t, out))
}

func TestCatSequenceOrder(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.flolog")
	b := filepath.Join(dir, "b.flolog")
	// queue seqs 0,1 in each file; timestamps reversed so the orders differ
	writeLog(t, a, entry{1, 100, "a0"}, entry{1, 200, "a1"})
	writeLog(t, b, entry{2, 50, "b0"}, entry{2, 60, "b1"})

	out, err := run(t, dir, "", "cat", "--order", "sequence", a, b)
	require.NoError(t, err)
	require.Equal(t, []string{"a0", "b0", "a1", "b1"}, payloads(t, out))

	_, err = run(t, dir, "", "cat", "--order", "random", a)
	require.Error(t, err)
}

func TestCatJSONWithFilter(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "x.flolog")
	writeLog(t, p, entry{1, 1, `{"kind":"a"}`}, entry{2, 2, `{"kind":"b"}`}, entry{2, 3, "plain"})

	out, err := run(t, dir, "", "cat", "--json", "--filter", "topic_id == 2", p)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, float64(2), first["topic_id"])
	require.Equal(t, map[string]any{"kind": "b"}, first["data_json"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Equal(t, "plain", second["data_text"])

	_, err = run(t, dir, "", "cat", "--filter", "topic_id ==", p)
	require.ErrorContains(t, err, "invalid --filter")
}

func corruptFirstRecord(t *testing.T, path string) {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	b[len(logfile.Magic)+record.LengthHeaderSize+record.RecordHeaderSize] ^= 0xff
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

func TestCatCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bad.flolog")
	writeLog(t, p, entry{1, 1, "broken"}, entry{1, 2, "fine"})
	corruptFirstRecord(t, p)

	_, err := run(t, dir, "", "cat", p)
	require.ErrorIs(t, err, record.ErrCRCRecord)
	require.ErrorContains(t, err, "--skip-corrupt")

	out, err := run(t, dir, "", "cat", "--skip-corrupt", p)
	require.NoError(t, err)
	require.Equal(t, []string{"fine"}, payloads(t, out))
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.flolog")
	bad := filepath.Join(dir, "bad.flolog")
	writeLog(t, good, entry{1, 1, "x"}, entry{1, 2, "y"})
	writeLog(t, bad, entry{1, 1, "broken"}, entry{1, 2, "fine"})
	corruptFirstRecord(t, bad)

	out, err := run(t, dir, "", "verify", good)
	require.NoError(t, err)
	require.Contains(t, out, good+": 2 records, 0 corrupt, ok")

	out, err = run(t, dir, "", "verify", good, bad, filepath.Join(dir, "missing.flolog"))
	require.ErrorContains(t, err, "2 of 3 files failed")
	require.Contains(t, out, bad+": 1 records, 1 corrupt, corrupt")
	require.Contains(t, out, "missing.flolog: 0 records, 0 corrupt, error:")
}

func TestImportExportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.flolog")
	b := filepath.Join(dir, "b.flolog")
	writeLog(t, a, entry{1, 10, "a10"}, entry{1, 30, "a30"})
	writeLog(t, b, entry{2, 20, "b20"})

	out, err := run(t, dir, "", "import", "--log", "orders", "--batch", "2", a, b)
	require.NoError(t, err)
	require.Contains(t, out, "imported 3 records into orders (last seq 3)")

	exported := filepath.Join(dir, "out.flolog.gz")
	out, err = run(t, dir, "", "export", "--log", "orders", "--out", exported)
	require.NoError(t, err)
	require.Contains(t, out, "exported 3 records")

	recs, err := logfile.ReadAll(logfile.NewReader(exported))
	require.NoError(t, err)
	want := []record.Record{
		{QueueSeq: 0, TopicID: 1, TopicSeq: 0, Timestamp: 10, Data: []byte("a10")},
		{QueueSeq: 0, TopicID: 2, TopicSeq: 0, Timestamp: 20, Data: []byte("b20")},
		{QueueSeq: 1, TopicID: 1, TopicSeq: 1, Timestamp: 30, Data: []byte("a30")},
	}
	if diff := cmp.Diff(want, recs); diff != "" {
		t.Fatalf("exported records mismatch (-want +got):\n%s", diff)
	}

	_, err = run(t, dir, "", "export", "--log", "orders", "--out", exported)
	require.ErrorIs(t, err, logfile.ErrFileExists)
}

func TestExportFilterFromPosition(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "in.flolog")
	writeLog(t, p, entry{1, 1, "one"}, entry{2, 2, "two"}, entry{1, 3, "three"}, entry{1, 4, "four"})
	_, err := run(t, dir, "", "import", "--log", "l", p)
	require.NoError(t, err)

	out := filepath.Join(dir, "out.flolog")
	_, err = run(t, dir, "", "export", "--log", "l", "--from", "2", "--filter", "topic_id == 1", "--out", out)
	require.NoError(t, err)
	recs, err := logfile.ReadAll(logfile.NewReader(out))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "three", string(recs[0].Data))
	require.Equal(t, "four", string(recs[1].Data))
}

func TestTailWithGroupResumes(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "in.flolog")
	writeLog(t, p, entry{1, 1, "a"}, entry{1, 2, "b"}, entry{1, 3, "c"})
	_, err := run(t, dir, "", "import", "--log", "t", p)
	require.NoError(t, err)

	out, err := run(t, dir, "", "tail", "--log", "t", "--group", "g", "--limit", "1")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, payloads(t, out))

	out, err = run(t, dir, "", "tail", "--log", "t", "--group", "g")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, payloads(t, out))

	out, err = run(t, dir, "", "tail", "--log", "t", "--group", "g")
	require.NoError(t, err)
	require.Empty(t, strings.TrimSpace(out))

	// --from overrides the committed position
	out, err = run(t, dir, "", "tail", "--log", "t", "--group", "g", "--from", "1", "--json")
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)
}

func TestTrim(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "in.flolog")
	writeLog(t, p, entry{1, 1, "0123456789"}, entry{1, 2, "0123456789"}, entry{1, 3, "0123456789"})
	_, err := run(t, dir, "", "import", "--log", "t", p)
	require.NoError(t, err)

	frame := record.Record{Data: []byte("0123456789")}.FrameSize()
	out, err := run(t, dir, "", "trim", "--log", "t", "--max-bytes", strconv.Itoa(frame))
	require.NoError(t, err)
	require.Contains(t, out, "trimmed 2 records from t")

	// timestamps are 1..3ns after the epoch, so everything is older than an hour
	out, err = run(t, dir, "", "trim", "--log", "t", "--older-than", "1h")
	require.NoError(t, err)
	require.Contains(t, out, "trimmed 1 records from t")

	_, err = run(t, dir, "", "trim", "--log", "t", "--save")
	require.Error(t, err)
}

func TestTrimStoredPolicyAndLogs(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "in.flolog")
	writeLog(t, p, entry{1, 1, "a"}, entry{1, 2, "b"})
	_, err := run(t, dir, "", "import", "--log", "kept", p)
	require.NoError(t, err)
	_, err = run(t, dir, "", "import", "--log", "aged", p)
	require.NoError(t, err)

	// no policy: nothing is trimmed
	out, err := run(t, dir, "", "trim", "--log", "aged")
	require.NoError(t, err)
	require.Contains(t, out, "trimmed 0 records")

	out, err = run(t, dir, "", "trim", "--log", "aged", "--older-than", "24h", "--save")
	require.NoError(t, err)
	require.Contains(t, out, "trimmed 2 records from aged")

	out, err = run(t, dir, "", "logs")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "aged\tseq=2\tsize=0\tretention=age=24h0m0s bytes=0"), lines[0])
	require.True(t, strings.HasPrefix(lines[1], "kept\tseq=2\t"), lines[1])
	require.Contains(t, lines[1], "retention=none")

	out, err = run(t, dir, "", "logs", "--json")
	require.NoError(t, err)
	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.Split(out, "\n")[0]), &first))
	require.Equal(t, "aged", first["name"])
	require.Equal(t, float64(24*60*60*1000), first["retentionMs"])
}

func TestArchiveToFile(t *testing.T) {
	dir := t.TempDir()
	archDir := filepath.Join(dir, "arch")
	out, err := run(t, dir, "one\ntwo\nthree\n", "archive", "--dir", archDir, "--prefix", "stdin", "--topic", "7", "--compression", "gzip")
	require.NoError(t, err)
	require.Contains(t, out, "archived 3 records to ")

	path := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), "archived 3 records to "))
	require.Equal(t, archDir, filepath.Dir(path))
	require.True(t, strings.HasPrefix(filepath.Base(path), "stdin-"))
	require.True(t, strings.HasSuffix(path, ".flolog.gz"))

	recs, err := logfile.ReadAll(logfile.NewReader(path))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, want := range []string{"one", "two", "three"} {
		require.Equal(t, want, string(recs[i].Data))
		require.Equal(t, uint64(i), recs[i].QueueSeq)
		require.Equal(t, uint64(i), recs[i].TopicSeq)
		require.Equal(t, uint64(7), recs[i].TopicID)
	}
}

func TestArchiveToEventLog(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, dir, "x\ny\n", "archive", "--log", "ingest")
	require.NoError(t, err)
	require.Contains(t, out, "archived 2 records to log ingest")

	out, err = run(t, dir, "", "tail", "--log", "ingest")
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, payloads(t, out))
}

func TestRequiresLogFlag(t *testing.T) {
	dir := t.TempDir()
	for _, args := range [][]string{{"tail"}, {"trim", "--max-bytes", "1"}, {"export", "--out", "x"}, {"import", "f"}} {
		_, err := run(t, dir, "", args...)
		require.ErrorIs(t, err, errMissingLog, "%v", args)
	}
}

func TestConfigFileIsLoaded(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "flolog.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("reader:\n  skipCorrupt: true\n"), 0o644))
	p := filepath.Join(dir, "bad.flolog")
	writeLog(t, p, entry{1, 1, "broken"}, entry{1, 2, "fine"})
	corruptFirstRecord(t, p)

	out, err := run(t, dir, "", "--config", cfgPath, "cat", p)
	require.NoError(t, err)
	require.Equal(t, []string{"fine"}, payloads(t, out))
}
