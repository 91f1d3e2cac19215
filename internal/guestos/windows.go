package guestos

// utcRegistryFile switches the guest clock to UTC, which KVM guests expect.
const utcRegistryFile = "utc.reg"

// WindowsProvider covers Windows guests.
type WindowsProvider struct {
	BaseProvider
}

// NewWindowsProvider creates the Windows family provider.
func NewWindowsProvider() *WindowsProvider {
	return &WindowsProvider{
		BaseProvider: BaseProvider{id: Windows, name: "Windows"},
	}
}

// RegistryMerge returns the UTC clock registry file.
func (p *WindowsProvider) RegistryMerge() string {
	return utcRegistryFile
}

func init() {
	Register(NewWindowsProvider())
}
