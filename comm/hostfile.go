package comm

import (
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Hostfile lists the address of every rank in a job, indexed by rank.
//
//	job: nightly
//	ranks:
//	  - 10.0.0.1:7400
//	  - 10.0.0.2:7400
type Hostfile struct {
	Job   string   `yaml:"job"`
	Ranks []string `yaml:"ranks"`
}

// LoadHostfile reads a YAML hostfile from disk.
func LoadHostfile(path string) (*Hostfile, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var h Hostfile
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, errors.Wrapf(err, "parse hostfile %s", path)
	}
	if err := h.Validate(); err != nil {
		return nil, errors.Wrapf(err, "hostfile %s", path)
	}
	return &h, nil
}

// ParsePeers builds a hostfile from a comma separated address list.
func ParsePeers(job, peers string) *Hostfile {
	h := &Hostfile{Job: job}
	for _, p := range strings.Split(peers, ",") {
		if p = strings.TrimSpace(p); p != "" {
			h.Ranks = append(h.Ranks, p)
		}
	}
	return h
}

// Loopback builds a hostfile of size ranks on 127.0.0.1 starting at port.
func Loopback(job string, size, port int) *Hostfile {
	h := &Hostfile{Job: job, Ranks: make([]string, size)}
	for i := range h.Ranks {
		h.Ranks[i] = fmt.Sprintf("127.0.0.1:%d", port+i)
	}
	return h
}

// Size is the number of ranks in the job.
func (h *Hostfile) Size() int { return len(h.Ranks) }

// Validate checks that the hostfile names at least one rank and no address
// twice.
func (h *Hostfile) Validate() error {
	if h == nil || len(h.Ranks) == 0 {
		return errors.New("hostfile lists no ranks")
	}
	seen := make(map[string]int, len(h.Ranks))
	for i, addr := range h.Ranks {
		if addr == "" {
			return errors.Errorf("rank %d has no address", i)
		}
		if j, ok := seen[addr]; ok {
			return errors.Errorf("ranks %d and %d share address %s", j, i, addr)
		}
		seen[addr] = i
	}
	return nil
}

// Save writes the hostfile as YAML.
func (h *Hostfile) Save(path string) error {
	data, err := yaml.Marshal(h)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(ioutil.WriteFile(path, data, 0644))
}
