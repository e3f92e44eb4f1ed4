// Package server owns the Fiber application that forms the interception
// boundary: every outbound request of the hosting application enters here,
// gets a request ID, and is routed either to a control endpoint under /-/
// or to the gateway handler that applies the caching strategies. The package
// also provides the shared upstream http.Client and hop-by-hop header
// filtering used when forwarding requests.
package server
