// Package runtime wires configuration, logging, metrics and storage into a
// single flolog process. Commands build one Runtime and use it to open event
// logs, build queues and attach archivers.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
//	q := rt.NewQueue()
//	arch, _ := rt.StartFileArchiver(q, "orders")
//	_, _ = q.Writer(1).Write(time.Now().UnixNano(), []byte("hello"))
//	_ = arch.Stop()
package runtime
