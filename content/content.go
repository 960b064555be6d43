// Package content lists the karts and tracks installed in a data
// directory. The lobby only needs their names; the metadata files carry the
// rest.
package content

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Kart struct {
	Name  string `yaml:"name"`
	Class string `yaml:"class"`
}

type Track struct {
	Name       string `yaml:"name"`
	Laps       uint8  `yaml:"laps"`
	Reversible bool   `yaml:"reversible"`
	Arena      bool   `yaml:"arena"`
}

// Catalogue is the installed content, sorted by name.
type Catalogue struct {
	Karts  []Kart
	Tracks []Track
}

// Builtin is used when no data directory is present.
func Builtin() *Catalogue {
	return &Catalogue{
		Karts: []Kart{
			{Name: "gnu", Class: "medium"},
			{Name: "nolok", Class: "heavy"},
			{Name: "sara", Class: "light"},
			{Name: "tux", Class: "medium"},
		},
		Tracks: []Track{
			{Name: "hacienda", Laps: 3, Reversible: true},
			{Name: "lighthouse", Laps: 4, Reversible: true},
			{Name: "sandtrack", Laps: 3, Reversible: true},
			{Name: "snowmountain", Laps: 3},
		},
	}
}

// Load reads dir/karts/*.yaml and dir/tracks/*.yaml. A file's base name is
// the content name unless the file sets one.
func Load(dir string) (*Catalogue, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.WithField("dir", dir).Warn("No content directory, using built-in karts and tracks")
		return Builtin(), nil
	}

	var c Catalogue
	err := loadDir(filepath.Join(dir, "karts"), func(name string, data []byte) error {
		k := Kart{Name: name}
		if err := yaml.Unmarshal(data, &k); err != nil {
			return err
		}
		c.Karts = append(c.Karts, k)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = loadDir(filepath.Join(dir, "tracks"), func(name string, data []byte) error {
		t := Track{Name: name, Laps: 3}
		if err := yaml.Unmarshal(data, &t); err != nil {
			return err
		}
		c.Tracks = append(c.Tracks, t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(c.Karts, func(a, b Kart) int { return strings.Compare(a.Name, b.Name) })
	slices.SortFunc(c.Tracks, func(a, b Track) int { return strings.Compare(a.Name, b.Name) })
	if len(c.Karts) == 0 || len(c.Tracks) == 0 {
		return nil, errors.Errorf("content directory %s has no karts or no tracks", dir)
	}
	return &c, nil
}

func loadDir(dir string, add func(name string, data []byte) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "read %s", dir)
	}
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		if err := add(strings.TrimSuffix(e.Name(), ext), data); err != nil {
			return errors.Wrapf(err, "parse %s", path)
		}
		log.WithField("file", path).Debug("Loaded content")
	}
	return nil
}

func (c *Catalogue) KartNames() []string {
	names := make([]string, len(c.Karts))
	for i, k := range c.Karts {
		names[i] = k.Name
	}
	return names
}

// TrackNames lists race tracks. Arenas are left out.
func (c *Catalogue) TrackNames() []string {
	var names []string
	for _, t := range c.Tracks {
		if !t.Arena {
			names = append(names, t.Name)
		}
	}
	return names
}

func (c *Catalogue) Track(name string) (Track, bool) {
	i := slices.IndexFunc(c.Tracks, func(t Track) bool { return t.Name == name })
	if i < 0 {
		return Track{}, false
	}
	return c.Tracks[i], true
}
