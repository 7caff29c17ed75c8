package lang

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrUnknownLanguage is returned by Lookup when no eligible descriptor
// matches the requested name.
var ErrUnknownLanguage = errors.New("lang: unknown language")

// Registry maps lowercase language names to descriptors. It is built once
// at startup and is read-only thereafter; no mutex guards the maps because
// nothing mutates them after NewRegistry returns.
type Registry struct {
	all      map[string]*Descriptor
	eligible map[string]*Descriptor
}

// NewRegistry builds a Registry from descs, probing each descriptor's
// required programs with access(X_OK) (via exec.LookPath). Descriptors
// that fail the probe are logged and omitted from the eligible map but
// retained in the unfiltered one for introspection. Display-name
// collisions are logged as warnings; the later descriptor in descs wins.
func NewRegistry(descs []*Descriptor) *Registry {
	r := &Registry{
		all:      make(map[string]*Descriptor, len(descs)),
		eligible: make(map[string]*Descriptor, len(descs)),
	}
	for _, d := range descs {
		key := d.Key()
		if _, dup := r.all[key]; dup {
			log.Warn().Str("lang", key).Msg("duplicate language name, last registration wins")
		}
		r.all[key] = d
		if d.Eligible() {
			r.eligible[key] = d
		} else {
			log.Warn().Str("lang", key).Msg("language dropped: a required program is not executable")
		}
	}
	return r
}

// Lookup resolves name (case-insensitive) against the eligible set.
func (r *Registry) Lookup(name string) (*Descriptor, error) {
	d, ok := r.eligible[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, name)
	}
	return d, nil
}

// All returns every registered descriptor, including ones dropped for
// missing binaries.
func (r *Registry) All() map[string]*Descriptor {
	return r.all
}

// Eligible returns only descriptors whose required programs are present.
func (r *Registry) Eligible() map[string]*Descriptor {
	return r.eligible
}
