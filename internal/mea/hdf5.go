package mea

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gonum.org/v1/hdf5"
)

// Dataset paths of the edge streams in an MCS HDF5 recording.
const (
	HighEventPath = "/Data/Recording_0/EventStream/Stream_0/EventEntity_0"
	LowEventPath  = "/Data/Recording_0/EventStream/Stream_1/EventEntity_0"
)

// HDF5Loader reads events from MCS HDF5 recordings.
type HDF5Loader struct{}

// LoadEvents reads the first row of the high and low event entities.
func (HDF5Loader) LoadEvents(path string) (*Events, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}

	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}
	defer f.Close()

	high, err := readFirstRow(f, HighEventPath)
	if err != nil {
		return nil, err
	}
	low, err := readFirstRow(f, LowEventPath)
	if err != nil {
		return nil, err
	}
	return &Events{High: high, Low: low}, nil
}

// readFirstRow reads row 0 of a 1-D or 2-D integer dataset.
func readFirstRow(f *hdf5.File, name string) ([]int64, error) {
	ds, err := f.OpenDataset(name)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", name, err)
	}
	defer ds.Close()

	space := ds.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, fmt.Errorf("dataset %s extent: %w", name, err)
	}
	if len(dims) == 0 || len(dims) > 2 {
		return nil, fmt.Errorf("dataset %s has rank %d", name, len(dims))
	}

	total := 1
	for _, d := range dims {
		total *= int(d)
	}
	data := make([]int64, total)
	if total == 0 {
		return data, nil
	}
	if err := ds.Read(&data); err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", name, err)
	}

	if len(dims) == 2 {
		return data[:dims[1]], nil
	}
	return data, nil
}
