package f

const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

type HealthCheckResponse struct {
	Whoami     string                          `json:"whoami"`
	Status     string                          `json:"status"`
	Components map[string]HealthCheckComponent `json:"components"`
}

type HealthCheckComponent struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

type HealthCheck struct {
	service    string
	status     string
	components map[string]HealthCheckComponent
}

func NewHealthCheck(service string) *HealthCheck {
	return &HealthCheck{
		service:    service,
		status:     StatusUp,
		components: make(map[string]HealthCheckComponent),
	}
}

// Add records the outcome of one component probe. Any failing component
// marks the whole service DOWN.
func (b *HealthCheck) Add(name string, err error, details any) {
	component := HealthCheckComponent{Status: StatusUp, Details: details}
	if err != nil {
		component.Status = StatusDown
		component.Message = err.Error()
		b.status = StatusDown
	}
	b.components[name] = component
}

func (b *HealthCheck) Status() string {
	return b.status
}

func (b *HealthCheck) Build() HealthCheckResponse {
	return HealthCheckResponse{
		Whoami:     b.service,
		Status:     b.status,
		Components: b.components,
	}
}
