package domain

// Labels stamped on images and containers managed by lighthouse.
const (
	LabelApp    = "lighthouse.app"
	LabelBuild  = "lighthouse.build"
	LabelRecipe = "lighthouse.recipe"
	LabelPort   = "lighthouse.port"
)

// Container represents a container in the system (Docker, K8s, etc.)
type Container struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	Status    string `json:"status"`
	State     string `json:"state"` // running, exited, etc.
	IPAddress string `json:"ip_address,omitempty"`
	// Port is the declared application port recorded on the container at start.
	Port int `json:"port,omitempty"`
}

// Running reports whether the runtime considers the container live.
func (c Container) Running() bool {
	return c.State == "running"
}
