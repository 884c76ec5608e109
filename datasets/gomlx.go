package datasets

import (
	"io"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/roussel-ryan/phase-space-reconstruction/tensor"
)

// This file adapts the datasets to gomlx's train.Dataset interface so
// reconstruction data can be fed to gomlx training loops and batching
// utilities: Yield produces the next example's scan parameters as the input
// tensors and its screen observations as the labels.

// Name returns the dataset name for the gomlx Dataset interface.
func (d *ObservableDataset) Name() string {
	return "ObservableDataset"
}

// Yield returns the next example as gomlx tensors. The inputs slice holds a
// single (M, K) parameter tensor; the labels slice holds one tensor per
// screen. It returns io.EOF once every example has been yielded; call
// Restart to rewind.
func (d *ObservableDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if d.cursor >= d.Len() {
		return nil, nil, nil, io.EOF
	}
	params, obs, err := d.Item(d.cursor)
	if err != nil {
		return nil, nil, nil, err
	}
	d.cursor++

	inputs = []*tensors.Tensor{toGomlxTensor(params)}
	labels = make([]*tensors.Tensor, len(obs))
	for i, o := range obs {
		labels[i] = toGomlxTensor(o)
	}
	return nil, inputs, labels, nil
}

// Restart rewinds the dataset for a new epoch.
func (d *ObservableDataset) Restart() error {
	d.cursor = 0
	return nil
}

// toGomlxTensor converts an internal float64 tensor into a float32 gomlx
// tensor of the same shape.
func toGomlxTensor(t *tensor.Tensor) *tensors.Tensor {
	data := make([]float32, len(t.Data))
	for i, v := range t.Data {
		data[i] = float32(v)
	}
	return tensors.FromFlatDataAndDimensions(data, t.Shape...)
}
