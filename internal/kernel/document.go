package kernel

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DocumentKernel is a Kernel backed by a YAML pipeline document.
//
// Example:
//
//	stages:
//	  - id: cut
//	    stage_cls: cut
//	    kwargs: {cut_point: 150}
//	  - id: find_peak
//	    stage_cls: find_peak
//	    policy_id: peaks_policy
//	policies:
//	  - id: peaks_policy
//	    policy_cls: single_stage_chaining
//	    condition_cls: key_present
//	    condition_kwargs: {key: current}
//	    next_stage_ids: [process_peak]
//	execution_order: [cut, find_peak]
type DocumentKernel struct {
	// Path is where the document was loaded from, if anywhere.
	Path string

	def Definition
}

// Define implements Kernel.
func (d *DocumentKernel) Define() Definition { return d.def }

// LoadDocument reads a pipeline document from path.
func LoadDocument(path string) (*DocumentKernel, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline document: %w", err)
	}
	d, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	d.Path = path
	return d, nil
}

// ParseDocument parses a pipeline document. Unknown fields are rejected.
func ParseDocument(data []byte) (*DocumentKernel, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty pipeline document", ErrRegistration)
		}
		return nil, fmt.Errorf("failed to parse pipeline document: %w", err)
	}
	if len(def.Stages) == 0 {
		return nil, fmt.Errorf("%w: pipeline document declares no stages", ErrRegistration)
	}
	return &DocumentKernel{def: def}, nil
}

// MarshalDocument renders a definition as a YAML pipeline document.
func MarshalDocument(def Definition) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(def); err != nil {
		return nil, fmt.Errorf("failed to encode pipeline document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode pipeline document: %w", err)
	}
	return buf.Bytes(), nil
}
