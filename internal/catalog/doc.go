// Package catalog registers event logs in the Pebble store together with an
// optional retention policy (maximum age and maximum size). The runtime adds
// a log to the catalog when it is first opened; `flolog logs` lists it and
// `flolog trim` applies the stored policy.
package catalog
