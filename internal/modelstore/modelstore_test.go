package modelstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const forestJSON = `{
  "name": "rf_model", "kind": "random_forest", "featureCount": 2,
  "trees": [
    {"nodes": [{"feature": 0, "threshold": 0.5, "left": 1, "right": 2},
               {"feature": -1, "value": 0.1},
               {"feature": -1, "value": 0.9}]},
    {"nodes": [{"feature": 1, "threshold": 3, "left": 1, "right": 2},
               {"feature": -1, "value": 0.7},
               {"feature": -1, "value": 0.3}]}
  ]
}`

func TestRandomForest_AveragesTrees(t *testing.T) {
	a, err := Parse([]byte(forestJSON))
	require.NoError(t, err)

	p, err := a.PredictProba([]float64{1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, p, 1e-12)

	p, err = a.PredictProba([]float64{0, 5})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, p, 1e-12)
}

func TestLogistic(t *testing.T) {
	a, err := Parse([]byte(`{"kind":"logistic","featureCount":2,"intercept":0,"coefficients":[1,-1]}`))
	require.NoError(t, err)
	p, err := a.PredictProba([]float64{2, 2})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-12)

	_, err = a.PredictProba([]float64{1})
	assert.ErrorIs(t, err, ErrFeatureCount)
}

func TestGradientBoosting_SigmoidOfMargin(t *testing.T) {
	a, err := Parse([]byte(`{"kind":"gradient_boosting","featureCount":1,"intercept":0,"learningRate":0.5,
		"trees":[{"nodes":[{"feature":-1,"value":2}]},{"nodes":[{"feature":-1,"value":-2}]}]}`))
	require.NoError(t, err)
	p, err := a.PredictProba([]float64{0})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-12)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown kind":    `{"kind":"svm","featureCount":1}`,
		"coef mismatch":   `{"kind":"logistic","featureCount":2,"coefficients":[1]}`,
		"backward child":  `{"kind":"random_forest","featureCount":1,"trees":[{"nodes":[{"feature":0,"left":0,"right":1},{"feature":-1}]}]}`,
		"feature too big": `{"kind":"random_forest","featureCount":1,"trees":[{"nodes":[{"feature":3,"left":1,"right":2},{"feature":-1},{"feature":-1}]}]}`,
		"not json":        `nope`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestFileLoader_AndRegistry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, RandomForestName+".json"), []byte(forestJSON), 0o644))

	reg := Load(context.Background(), NewFileLoader(dir), RandomForestName, GradientBoostingName)
	assert.Equal(t, 1, reg.Len())

	c, err := reg.Classifier(RandomForestName)
	require.NoError(t, err)
	require.NotNil(t, c)

	_, err = reg.Classifier(GradientBoostingName)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type fakeS3 struct {
	objects map[string]string
	keys    []string
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.keys = append(f.keys, *in.Bucket+"/"+*in.Key)
	body, ok := f.objects[*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3Loader(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{"models/v1/rf_model.json": forestJSON}}
	l := NewS3Loader(fake, "bucket", "/models/v1/")

	data, err := l.Load(context.Background(), RandomForestName)
	require.NoError(t, err)
	assert.Equal(t, forestJSON, string(data))
	assert.Equal(t, []string{"bucket/models/v1/rf_model.json"}, fake.keys)

	_, err = l.Load(context.Background(), GradientBoostingName)
	assert.ErrorContains(t, err, "NoSuchKey")
}

func TestRegistry_NilIsEmpty(t *testing.T) {
	var r *Registry
	assert.Equal(t, 0, r.Len())
	_, err := r.Classifier("x")
	assert.Error(t, err)
}
