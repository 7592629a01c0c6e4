package fiducial

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/fiducial/rimage/transform"
	rutils "go.viam.com/fiducial/utils"
)

// Defaults applied to unset configuration values.
const (
	DefaultQuadDecimate     = 1.0
	DefaultDecodeSharpening = 0.25
)

// Config describes a tag pipeline: the frame geometry, detector tuning, the camera and the pose refinement.
type Config struct {
	Family           string  `json:"family"`
	Width            int     `json:"width_px"`
	Height           int     `json:"height_px"`
	QuadDecimate     float64 `json:"quad_decimate"`
	Threads          int     `json:"threads"`
	QuadSigma        float64 `json:"quad_sigma"`
	RefineEdges      *bool   `json:"refine_edges,omitempty"`
	DecodeSharpening float64 `json:"decode_sharpening"`
	Debug            bool    `json:"debug"`

	Camera     CameraConfig     `json:"camera"`
	Refinement RefinementConfig `json:"refinement"`
	// ProfileWindow is the number of frames of stage timings kept for summaries; zero disables them.
	ProfileWindow int `json:"profile_window"`
}

// CameraConfig describes the camera the frames come from.
type CameraConfig struct {
	FOVDegrees float64                            `json:"fov_degrees"`
	TagSize    float64                            `json:"tag_size"`
	Intrinsics *transform.PinholeCameraIntrinsics `json:"intrinsic_parameters,omitempty"`
	// IntrinsicsFile names a JSON file holding the intrinsics. Relative paths are resolved against
	// the directory of the config file.
	IntrinsicsFile string `json:"intrinsics_file,omitempty"`
}

// NewConfig returns a configuration for frames of the given size with every other value defaulted.
func NewConfig(width, height int, decimation float64) *Config {
	conf := &Config{Width: width, Height: height, QuadDecimate: decimation}
	conf.applyDefaults()
	return conf
}

func (conf *Config) applyDefaults() {
	if conf.Family == "" {
		conf.Family = DefaultFamily
	}
	if conf.QuadDecimate == 0 {
		conf.QuadDecimate = DefaultQuadDecimate
	}
	if conf.RefineEdges == nil {
		refine := true
		conf.RefineEdges = &refine
	}
	if conf.DecodeSharpening == 0 {
		conf.DecodeSharpening = DefaultDecodeSharpening
	}
	if conf.Refinement.MaxIterations == 0 {
		conf.Refinement.MaxIterations = DefaultMaxIterations
	}
	if conf.Refinement.Tolerance == 0 {
		conf.Refinement.Tolerance = DefaultTolerance
	}
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.Family == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "family")
	}
	if conf.Width <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "width_px")
	}
	if conf.Height <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "height_px")
	}
	if conf.QuadDecimate < 1 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("quad_decimate must be at least 1, got %v", conf.QuadDecimate))
	}
	if conf.Threads < 0 {
		return utils.NewConfigValidationError(path, errors.New("threads cannot be negative"))
	}
	if conf.QuadSigma < 0 {
		return utils.NewConfigValidationError(path, errors.New("quad_sigma cannot be negative"))
	}
	if conf.DecodeSharpening < 0 {
		return utils.NewConfigValidationError(path, errors.New("decode_sharpening cannot be negative"))
	}
	if conf.ProfileWindow < 0 {
		return utils.NewConfigValidationError(path, errors.New("profile_window cannot be negative"))
	}
	if conf.Camera != (CameraConfig{}) {
		if err := conf.Camera.Validate(fmt.Sprintf("%s.%s", path, "camera")); err != nil {
			return err
		}
	}
	return conf.Refinement.Validate(fmt.Sprintf("%s.%s", path, "refinement"))
}

// DetectorOptions returns the options the detector is configured with. An unset thread count
// uses every CPU.
func (conf *Config) DetectorOptions() DetectorOptions {
	threads := conf.Threads
	if threads == 0 {
		threads = runtime.NumCPU()
	}
	refine := true
	if conf.RefineEdges != nil {
		refine = *conf.RefineEdges
	}
	return DetectorOptions{
		Threads:          threads,
		QuadDecimate:     conf.QuadDecimate,
		QuadSigma:        conf.QuadSigma,
		RefineEdges:      refine,
		DecodeSharpening: conf.DecodeSharpening,
		Debug:            conf.Debug,
	}
}

// CameraParameters returns the camera parameters for frames of the configured size.
func (conf *Config) CameraParameters() CameraParameters {
	return CameraParameters{
		Width:      conf.Width,
		Height:     conf.Height,
		FOV:        rutils.DegToRad(conf.Camera.FOVDegrees),
		TagSize:    conf.Camera.TagSize,
		Intrinsics: conf.Camera.Intrinsics,
	}
}

// Validate ensures the camera description is usable.
func (cc *CameraConfig) Validate(path string) error {
	if cc.TagSize <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "tag_size")
	}
	if cc.Intrinsics != nil {
		if err := cc.Intrinsics.CheckValid(); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
		return nil
	}
	if cc.FOVDegrees <= 0 || cc.FOVDegrees >= 180 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("fov_degrees must be in (0, 180), got %v", cc.FOVDegrees))
	}
	return nil
}

// loadIntrinsics reads the intrinsics file, if one is named, into Intrinsics.
func (cc *CameraConfig) loadIntrinsics(path, baseDir string) error {
	if cc.IntrinsicsFile == "" {
		return nil
	}
	if cc.Intrinsics != nil {
		return utils.NewConfigValidationError(path,
			errors.New("only one of intrinsic_parameters and intrinsics_file may be set"))
	}
	file := cc.IntrinsicsFile
	if !filepath.IsAbs(file) {
		file = filepath.Join(baseDir, file)
	}
	intrinsics, err := transform.NewPinholeCameraIntrinsicsFromJSONFile(file)
	if err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	cc.Intrinsics = intrinsics
	return nil
}

// FromReader reads a config from JSON, applies defaults and validates it. An intrinsics file is
// resolved relative to the directory of originalPath.
func FromReader(originalPath string, buf []byte) (*Config, error) {
	var conf Config
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&conf); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", originalPath)
	}
	if err := conf.Camera.loadIntrinsics("camera", filepath.Dir(originalPath)); err != nil {
		return nil, err
	}
	conf.applyDefaults()
	if err := conf.Validate(""); err != nil {
		return nil, err
	}
	return &conf, nil
}

// ReadConfig reads a config from the given file, substituting environment variables first.
func ReadConfig(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, buf)
}

// ConfigFromAttributes decodes a config from a generic attribute map.
func ConfigFromAttributes(attrs map[string]interface{}) (*Config, error) {
	var conf Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: &conf})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attrs); err != nil {
		return nil, err
	}
	if err := conf.Camera.loadIntrinsics("camera", ""); err != nil {
		return nil, err
	}
	conf.applyDefaults()
	if err := conf.Validate(""); err != nil {
		return nil, err
	}
	return &conf, nil
}
