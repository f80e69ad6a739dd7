package trainer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/Noofbiz/nextframe/config"
	"github.com/pkg/errors"
)

type manifest struct {
	RunID    string         `json:"run_id"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Device   string         `json:"device"`
	Seed     int64          `json:"seed"`
	Epochs   int            `json:"epochs"`
	Steps    int            `json:"steps"`
	Config   *config.Config `json:"config"`
	Files    []string       `json:"files"`
}

func outputFiles(epochs int) []string {
	files := []string{MetricsFile, LossesGFile, LossesDFile, GeneratorFile}
	if epochs > 0 {
		files = append(files, LossCurvesFile)
	}
	for e := 0; e < epochs; e++ {
		files = append(files, GridPath("", e))
	}
	return files
}

// writeManifest stores m atomically as indented JSON.
func writeManifest(path string, m manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(raw, '\n'), 0644); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "rename %s", tmp)
}

// ReadManifest loads the run manifest from an output directory.
func ReadManifest(outDir string) (runID string, files []string, err error) {
	raw, err := os.ReadFile(filepath.Join(outDir, ManifestFile))
	if err != nil {
		return "", nil, errors.Wrap(err, "read manifest")
	}
	var m struct {
		RunID string   `json:"run_id"`
		Files []string `json:"files"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", nil, errors.Wrap(err, "decode manifest")
	}
	return m.RunID, m.Files, nil
}
