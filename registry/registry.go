// Package registry provides service instance registration and discovery, so
// clients can locate RPC servers without hard-coded addresses.
//
// A nil Registry is valid everywhere it is accepted: the server then serves
// on its listen address only, and the client connects to its configured
// host:port directly.
package registry

// DefaultService is the service name servers register under and clients
// discover by.
const DefaultService = "rpc-lab"

// ServiceInstance describes one reachable RPC server.
type ServiceInstance struct {
	Addr    string
	Weight  int // Weight for load balancing
	Version string
}

type Registry interface {
	Register(serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(serviceName string, addr string) error
	Discover(serviceName string) ([]ServiceInstance, error)
	Watch(serviceName string) <-chan []ServiceInstance
}
