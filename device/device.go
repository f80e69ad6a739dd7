// Package device picks the compute device the training engine runs on.
//
// Accelerators register themselves through Register; the pure-Go engine only
// provides "cpu", which is always available and used as the fallback.
package device

import (
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"
)

// Auto selects the first available accelerator, falling back to the CPU.
const Auto = "auto"

// CPU is the name of the general-purpose compute device.
const CPU = "cpu"

// Device describes the selected compute device.
type Device struct {
	Name        string
	Accelerator bool
	Features    []string
	Cores       int
}

// String returns the name followed by the detected features.
func (d Device) String() string {
	if len(d.Features) == 0 {
		return d.Name
	}
	return d.Name + " (" + strings.Join(d.Features, ",") + ")"
}

// Detector reports whether a device is usable on this machine.
type Detector func() (Device, bool)

var (
	mu           sync.Mutex
	accelerators = map[string]Detector{}
)

// Register adds an accelerator detector under name.
func Register(name string, detect Detector) {
	mu.Lock()
	defer mu.Unlock()
	accelerators[name] = detect
}

// Select returns the device named by preference. "auto" (or "") picks the
// first available registered accelerator in name order, and the CPU when
// none is available. Asking for a specific device that is unknown or not
// available is an error.
func Select(preference string) (Device, error) {
	pref := strings.ToLower(strings.TrimSpace(preference))
	if pref == "" {
		pref = Auto
	}
	if pref == CPU {
		return cpuDevice(), nil
	}

	mu.Lock()
	names := make([]string, 0, len(accelerators))
	for name := range accelerators {
		names = append(names, name)
	}
	detectors := make(map[string]Detector, len(accelerators))
	for k, v := range accelerators {
		detectors[k] = v
	}
	mu.Unlock()
	sort.Strings(names)

	if pref == Auto {
		for _, name := range names {
			if d, ok := detectors[name](); ok {
				return d, nil
			}
		}
		return cpuDevice(), nil
	}

	detect, ok := detectors[pref]
	if !ok {
		return Device{}, errors.Errorf("unknown device %q", preference)
	}
	d, ok := detect()
	if !ok {
		return Device{}, errors.Errorf("device %q is not available", preference)
	}
	return d, nil
}

func cpuDevice() Device {
	return Device{Name: CPU, Features: cpuFeatures(), Cores: runtime.NumCPU()}
}

func cpuFeatures() []string {
	var fs []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasAVX2 {
			fs = append(fs, "avx2")
		}
		if cpu.X86.HasFMA {
			fs = append(fs, "fma")
		}
		if cpu.X86.HasAVX512F {
			fs = append(fs, "avx512f")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			fs = append(fs, "neon")
		}
		if cpu.ARM64.HasSVE {
			fs = append(fs, "sve")
		}
	}
	return fs
}
