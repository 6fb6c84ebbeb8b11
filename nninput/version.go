package nninput

import (
	"errors"
	"fmt"
)

// ErrUnsupportedVersion means that a model version has no input encoding
var ErrUnsupportedVersion error = errors.New("model version not supported")

// Supported model and input versions
const (
	OldestModelVersion  = 1
	LatestModelVersion  = 1
	OldestInputsVersion = 1
	LatestInputsVersion = 1
)

// InputsVersion returns the input encoding used by a model version
func InputsVersion(modelVersion int) (int, error) {
	if modelVersion == 1 {
		return 1, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, modelVersion)
}

// NumSpatialFeatures returns the number of input planes of a model version
func NumSpatialFeatures(modelVersion int) (int, error) {
	if modelVersion == 1 {
		return NumFeaturesSpatialV1, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, modelVersion)
}

// NumGlobalFeatures returns the number of global inputs of a model version
func NumGlobalFeatures(modelVersion int) (int, error) {
	if modelVersion == 1 {
		return NumFeaturesGlobalV1, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, modelVersion)
}

// FeaturesForInputsVersion returns spatial and global feature counts of an input encoding
func FeaturesForInputsVersion(inputsVersion int) (int, int, error) {
	if inputsVersion == 1 {
		return NumFeaturesSpatialV1, NumFeaturesGlobalV1, nil
	}
	return 0, 0, fmt.Errorf("%w: inputs version %d", ErrUnsupportedVersion, inputsVersion)
}
