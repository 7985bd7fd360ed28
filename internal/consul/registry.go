package consul

import (
	"fmt"
	"os"
	"strconv"

	"github.com/docuchat/backend-go/internal/config"
	"github.com/docuchat/backend-go/internal/logger"
	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// ServiceRegistry handles service registration with Consul
type ServiceRegistry struct {
	client      *api.Client
	serviceID   string
	serviceName string
}

// NewServiceRegistry creates a registry backed by a Consul agent
func NewServiceRegistry(cfg config.ConsulConfig) (*ServiceRegistry, error) {
	apiConfig := api.DefaultConfig()
	if cfg.Address != "" {
		apiConfig.Address = cfg.Address
	}

	client, err := api.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "pdfchat-backend"
	}
	serviceID := cfg.ServiceID
	if serviceID == "" {
		hostname, _ := os.Hostname()
		serviceID = fmt.Sprintf("%s-%s", serviceName, hostname)
	}

	return &ServiceRegistry{
		client:      client,
		serviceID:   serviceID,
		serviceName: serviceName,
	}, nil
}

// Register registers the service with a /health HTTP check
func (sr *ServiceRegistry) Register(serverCfg config.ServerConfig) error {
	hostname := os.Getenv("SERVICE_HOST")
	if hostname == "" {
		hostname = "localhost"
	}

	port := 8001
	if p, err := strconv.Atoi(serverCfg.Port); err == nil {
		port = p
	}

	registration := &api.AgentServiceRegistration{
		ID:      sr.serviceID,
		Name:    sr.serviceName,
		Tags:    []string{"api", "go", "beego", serverCfg.Env},
		Address: hostname,
		Port:    port,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", hostname, port),
			Interval:                       "10s",
			Timeout:                        "3s",
			DeregisterCriticalServiceAfter: "30s",
		},
		Meta: map[string]string{
			"env": serverCfg.Env,
		},
	}

	if err := sr.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	logger.Info("Service registered with Consul",
		zap.String("service_id", sr.serviceID),
		zap.String("service_name", sr.serviceName),
		zap.String("address", hostname),
		zap.Int("port", port))
	return nil
}

// Deregister removes the service registration
func (sr *ServiceRegistry) Deregister() error {
	return sr.client.Agent().ServiceDeregister(sr.serviceID)
}
