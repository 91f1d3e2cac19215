package guestos

// LinuxProvider covers every Linux distribution.
type LinuxProvider struct {
	BaseProvider
}

// NewLinuxProvider creates the Linux family provider.
func NewLinuxProvider() *LinuxProvider {
	return &LinuxProvider{
		BaseProvider: BaseProvider{id: Linux, name: "Linux"},
	}
}

func init() {
	Register(NewLinuxProvider())
}
