package guestos

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Inspection is the subset of virt-inspector output the pipeline uses.
type Inspection struct {
	OperatingSystems []OperatingSystem `xml:"operatingsystem"`
}

// OperatingSystem is one <operatingsystem> entry.
type OperatingSystem struct {
	Name         string `xml:"name"`
	Distro       string `xml:"distro"`
	ProductName  string `xml:"product_name"`
	Arch         string `xml:"arch"`
	MajorVersion string `xml:"major_version"`
	MinorVersion string `xml:"minor_version"`
	Root         string `xml:"root"`
}

// ParseInspection decodes virt-inspector XML.
func ParseInspection(data string) (*Inspection, error) {
	var insp Inspection
	if err := xml.Unmarshal([]byte(strings.TrimSpace(data)), &insp); err != nil {
		return nil, errors.Wrap(err, "parse virt-inspector output")
	}
	return &insp, nil
}

// Family returns the family of the first operating system found, i.e.
// string(//operatingsystems/operatingsystem/name) lowercased. It returns ""
// when the disk holds no recognizable OS.
func (i *Inspection) Family() ID {
	if len(i.OperatingSystems) == 0 {
		return ""
	}
	return ParseName(i.OperatingSystems[0].Name)
}

// Describe returns a short description of the first operating system.
func (i *Inspection) Describe() string {
	if len(i.OperatingSystems) == 0 {
		return "no operating system found"
	}
	os := i.OperatingSystems[0]
	if os.ProductName != "" {
		return os.ProductName
	}
	return strings.TrimSpace(fmt.Sprintf("%s %s %s.%s", os.Name, os.Distro, os.MajorVersion, os.MinorVersion))
}
