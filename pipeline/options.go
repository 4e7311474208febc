package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Options mirrors the configuration table in spec §6. Fields are pointers,
// following internal/config.TuningConfig's convention in the teacher repo,
// so a partially-specified JSON document can be overlaid onto Defaults()
// without ambiguity between "unset" and "zero".
type Options struct {
	RefractoryPeriodUs *int64 `json:"refractory_period_us,omitempty"`

	FlowDtMinUs *int64   `json:"flow_dt_min_us,omitempty"`
	FlowDtMaxUs *int64   `json:"flow_dt_max_us,omitempty"`
	FlowDx      *int     `json:"flow_dx,omitempty"`
	FlowThr1    *float64 `json:"flow_thr1,omitempty"`
	FlowThr2    *float64 `json:"flow_thr2,omitempty"`

	FilterEnable   *bool    `json:"filter_enable,omitempty"`
	FilterDtMaxUs  *int64   `json:"filter_dt_max_us,omitempty"`
	FilterDx       *int     `json:"filter_dx,omitempty"`
	FilterDMag     *float64 `json:"filter_d_mag,omitempty"`
	FilterDAngle   *float64 `json:"filter_d_angle_deg,omitempty"`

	AdaptiveEnable       *bool    `json:"adaptive_enable,omitempty"`
	AdaptiveDtMinUs      *int64   `json:"adaptive_dt_min_us,omitempty"`
	AdaptiveDtMaxUs      *int64   `json:"adaptive_dt_max_us,omitempty"`
	AdaptiveRateSP       *float64 `json:"adaptive_rate_sp,omitempty"`
	AdaptiveGain         *float64 `json:"adaptive_gain,omitempty"`
	AdaptiveTauConstantS *float64 `json:"adaptive_tau_s,omitempty"`

	// SubSampleBy is declared and loaded but never consumed, matching the
	// reference's own unresolved option (spec §9 open questions).
	SubSampleBy *byte `json:"sub_sample_by,omitempty"`

	OutputMode     *string `json:"output_mode,omitempty"` // "none", "serial", "file", "both"
	SerialPort     *string `json:"serial_port,omitempty"`
	SerialBaud     *int    `json:"serial_baud,omitempty"`
	OutputFilePath *string `json:"output_file_path,omitempty"`
}

// Defaults returns the spec's default configuration table (§6).
func Defaults() *Options {
	return &Options{
		RefractoryPeriodUs: ptr(int64(10000)),

		FlowDtMinUs: ptr(int64(3000)),
		FlowDtMaxUs: ptr(int64(300000)),
		FlowDx:      ptr(3),
		FlowThr1:    ptr(1e5),
		FlowThr2:    ptr(5e3),

		FilterEnable:  ptr(true),
		FilterDtMaxUs: ptr(int64(300000)),
		FilterDx:      ptr(3),
		FilterDMag:    ptr(1.0),
		FilterDAngle:  ptr(20.0),

		AdaptiveEnable:       ptr(true),
		AdaptiveDtMinUs:      ptr(int64(100)),
		AdaptiveDtMaxUs:      ptr(int64(1000000)),
		AdaptiveRateSP:       ptr(600.0),
		AdaptiveGain:         ptr(2.0),
		AdaptiveTauConstantS: ptr(0.01),

		SubSampleBy: func() *byte { var b byte; return &b }(),

		OutputMode: ptr("none"),
		SerialBaud: ptr(115200),
	}
}

// Merge overlays non-nil fields of patch onto a copy of o.
func (o *Options) Merge(patch *Options) *Options {
	out := *o
	if patch == nil {
		return &out
	}
	v := *patch
	if v.RefractoryPeriodUs != nil {
		out.RefractoryPeriodUs = v.RefractoryPeriodUs
	}
	if v.FlowDtMinUs != nil {
		out.FlowDtMinUs = v.FlowDtMinUs
	}
	if v.FlowDtMaxUs != nil {
		out.FlowDtMaxUs = v.FlowDtMaxUs
	}
	if v.FlowDx != nil {
		out.FlowDx = v.FlowDx
	}
	if v.FlowThr1 != nil {
		out.FlowThr1 = v.FlowThr1
	}
	if v.FlowThr2 != nil {
		out.FlowThr2 = v.FlowThr2
	}
	if v.FilterEnable != nil {
		out.FilterEnable = v.FilterEnable
	}
	if v.FilterDtMaxUs != nil {
		out.FilterDtMaxUs = v.FilterDtMaxUs
	}
	if v.FilterDx != nil {
		out.FilterDx = v.FilterDx
	}
	if v.FilterDMag != nil {
		out.FilterDMag = v.FilterDMag
	}
	if v.FilterDAngle != nil {
		out.FilterDAngle = v.FilterDAngle
	}
	if v.AdaptiveEnable != nil {
		out.AdaptiveEnable = v.AdaptiveEnable
	}
	if v.AdaptiveDtMinUs != nil {
		out.AdaptiveDtMinUs = v.AdaptiveDtMinUs
	}
	if v.AdaptiveDtMaxUs != nil {
		out.AdaptiveDtMaxUs = v.AdaptiveDtMaxUs
	}
	if v.AdaptiveRateSP != nil {
		out.AdaptiveRateSP = v.AdaptiveRateSP
	}
	if v.AdaptiveGain != nil {
		out.AdaptiveGain = v.AdaptiveGain
	}
	if v.AdaptiveTauConstantS != nil {
		out.AdaptiveTauConstantS = v.AdaptiveTauConstantS
	}
	if v.SubSampleBy != nil {
		out.SubSampleBy = v.SubSampleBy
	}
	if v.OutputMode != nil {
		out.OutputMode = v.OutputMode
	}
	if v.SerialPort != nil {
		out.SerialPort = v.SerialPort
	}
	if v.SerialBaud != nil {
		out.SerialBaud = v.SerialBaud
	}
	if v.OutputFilePath != nil {
		out.OutputFilePath = v.OutputFilePath
	}
	return &out
}

// Validate checks option ranges a misconfigured harness would otherwise
// only discover at runtime: dtMin <= dtMax, a gain strictly greater than 1,
// and a recognized output mode.
func (o *Options) Validate() error {
	if o.FlowDtMinUs == nil || o.FlowDtMaxUs == nil || *o.FlowDtMinUs > *o.FlowDtMaxUs {
		return fmt.Errorf("pipeline: flow_dt_min_us must be <= flow_dt_max_us")
	}
	if o.AdaptiveDtMinUs == nil || o.AdaptiveDtMaxUs == nil || *o.AdaptiveDtMinUs > *o.AdaptiveDtMaxUs {
		return fmt.Errorf("pipeline: adaptive_dt_min_us must be <= adaptive_dt_max_us")
	}
	if o.AdaptiveGain == nil || *o.AdaptiveGain <= 1 {
		return fmt.Errorf("pipeline: adaptive_gain must be > 1")
	}
	if o.OutputMode != nil {
		switch *o.OutputMode {
		case "none", "serial", "file", "both":
		default:
			return fmt.Errorf("pipeline: unrecognized output_mode %q", *o.OutputMode)
		}
	}
	return nil
}

// maxConfigFileSize caps how large a JSON options file we'll read, matching
// the teacher's internal/config.LoadTuningConfig size guard.
const maxConfigFileSize = 1 << 20 // 1MiB

// LoadOptions reads a JSON options document from path and overlays it onto
// Defaults(). Fields omitted from the file keep their default values.
func LoadOptions(path string) (*Options, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("pipeline: config file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("pipeline: config file too large: %d bytes", info.Size())
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: failed to read config file: %w", err)
	}
	patch := &Options{}
	if err := json.Unmarshal(data, patch); err != nil {
		return nil, fmt.Errorf("pipeline: failed to parse config JSON: %w", err)
	}
	merged := Defaults().Merge(patch)
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: invalid configuration: %w", err)
	}
	return merged, nil
}

func ptr[T any](v T) *T { return &v }
