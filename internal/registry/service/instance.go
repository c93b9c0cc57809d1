// Package service defines the ServiceInstance model registered and
// discovered through the registry's etcd-backed store.
package service

import "fmt"

// Status is the lifecycle state of a registered instance.
type Status string

const (
	StatusStarting  Status = "Starting"
	StatusHealthy   Status = "Healthy"
	StatusUnhealthy Status = "Unhealthy"
	StatusStopping  Status = "Stopping"
)

// Instance describes one running copy of a service.
type Instance struct {
	Name     string            `json:"name"`
	ID       string            `json:"id"`
	Address  string            `json:"address"`
	Port     int               `json:"port"`
	Status   Status            `json:"status"`
	Version  string            `json:"version"`
	Metadata map[string]string `json:"metadata"`
}

// New builds an Instance in the Starting state with an empty metadata map.
func New(name, id, address string, port int) Instance {
	return Instance{
		Name:     name,
		ID:       id,
		Address:  address,
		Port:     port,
		Status:   StatusStarting,
		Version:  "0.1.0",
		Metadata: map[string]string{},
	}
}

// Key is the derived etcd key /services/{name}/{id}.
func (i Instance) Key() string {
	return fmt.Sprintf("/services/%s/%s", i.Name, i.ID)
}

// Prefix is the scan prefix /services/{name}/ used for discovery by name.
func Prefix(name string) string {
	return fmt.Sprintf("/services/%s/", name)
}

// Endpoint returns the reachable http://address:port base URL.
func (i Instance) Endpoint() string {
	return fmt.Sprintf("http://%s:%d", i.Address, i.Port)
}
