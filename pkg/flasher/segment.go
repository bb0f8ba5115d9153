package flasher

import "path/filepath"

// Segment is one target memory region and the image written to it.
type Segment struct {
	// Name is the short name used in logs and reports.
	Name string
	// Selector is the code written to the download agent to pick the region.
	Selector string
	// Image is the path of the image file.
	Image string
}

// Segment names.
const (
	SegmentLoader    = "ldr"
	SegmentWiFi      = "n9"
	SegmentBluetooth = "cm4"
)

// Segments returns the segments in flashing order.
func (c *Config) Segments() []Segment {
	return []Segment{
		{Name: SegmentLoader, Selector: "1", Image: c.imagePath(c.Loader)},
		{Name: SegmentWiFi, Selector: "3", Image: c.imagePath(c.WiFi)},
		{Name: SegmentBluetooth, Selector: "2", Image: c.imagePath(c.Bluetooth)},
	}
}

// DownloadAgentPath returns the resolved path of the download agent.
func (c *Config) DownloadAgentPath() string {
	return c.imagePath(c.DownloadAgent)
}

// SegmentByName finds a segment by name.
func (c *Config) SegmentByName(name string) (Segment, bool) {
	for _, seg := range c.Segments() {
		if seg.Name == name {
			return seg, true
		}
	}
	return Segment{}, false
}

func (c *Config) imagePath(name string) string {
	if filepath.IsAbs(name) || c.ImageDir == "" {
		return name
	}
	return filepath.Join(c.ImageDir, name)
}
