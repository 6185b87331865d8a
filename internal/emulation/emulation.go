// Package emulation holds the registry of device-emulation profiles and
// applies one to a tab before navigation begins.
package emulation

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"gopkg.in/yaml.v3"
)

// DeviceMetrics mirrors emulation.SetDeviceMetricsOverrideParams' fields
// (spec §4.4 / original_source DeviceMetrics).
type DeviceMetrics struct {
	Width             int64              `yaml:"width"`
	Height            int64              `yaml:"height"`
	DeviceScaleFactor float64            `yaml:"device_scale_factor"`
	Mobile            bool               `yaml:"mobile"`
	Scale             float64            `yaml:"scale,omitempty"`
	ScreenWidth       int64              `yaml:"screen_width,omitempty"`
	ScreenHeight      int64              `yaml:"screen_height,omitempty"`
	PositionX         int64              `yaml:"position_x,omitempty"`
	PositionY         int64              `yaml:"position_y,omitempty"`
	DontSetVisibleSize bool              `yaml:"dont_set_visible_size,omitempty"`
	ScreenOrientation *ScreenOrientation `yaml:"screen_orientation,omitempty"`
	Viewport          *Viewport          `yaml:"viewport,omitempty"`
}

type ScreenOrientation struct {
	Type  string `yaml:"type"`
	Angle int64  `yaml:"angle"`
}

type Viewport struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	Scale  float64 `yaml:"scale"`
}

// UserAgentOverride mirrors original_source's UserAgentOverride.
type UserAgentOverride struct {
	UserAgent      string `yaml:"user_agent"`
	AcceptLanguage string `yaml:"accept_language"`
	Platform       string `yaml:"platform"`
}

// Device is one named emulation profile (spec §4.4 / original_source
// EmulationDevice).
type Device struct {
	Name              string            `yaml:"name"`
	DeviceMetrics     DeviceMetrics     `yaml:"device_metrics"`
	UserAgentOverride UserAgentOverride `yaml:"user_agent_override"`
	IsMobile          bool              `yaml:"is_mobile"`
	AcceptedEncodings []string          `yaml:"accepted_encodings,omitempty"`
}

type devicesFile struct {
	Devices []Device `yaml:"devices"`
}

// Registry holds the set of devices loaded at startup. It is read-only
// after construction and safe for concurrent use.
type Registry struct {
	devices map[string]Device
}

// LoadFile reads a YAML devices file (config.EmulationConfig.EmulationConfigPath)
// and returns the resulting registry.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read emulation devices file: %w", err)
	}
	return Load(data)
}

// Load parses YAML device definitions into a Registry.
func Load(data []byte) (*Registry, error) {
	var f devicesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode emulation devices: %w", err)
	}

	reg := &Registry{devices: make(map[string]Device, len(f.Devices))}
	for _, d := range f.Devices {
		reg.devices[d.Name] = d
	}
	return reg, nil
}

// GetByName resolves a device profile. Resolution of an unknown name is a
// validation error the caller must raise before the scan starts (spec
// §4.4 — the message is rejected without requeue, never retried).
func (r *Registry) GetByName(name string) (Device, error) {
	d, ok := r.devices[name]
	if !ok {
		return Device{}, fmt.Errorf("emulation: unknown device %q", name)
	}
	return d, nil
}

// Apply issues the device-emulation CDP calls against tab ctx in the
// spec-mandated order: device metrics, user-agent (network + emulation
// domains), touch emulation iff mobile, accepted encodings iff provided,
// cookies iff provided.
func Apply(ctx context.Context, d Device, cookies []*network.CookieParam) error {
	actions := []chromedp.Action{
		deviceMetricsAction(d.DeviceMetrics),
		network.SetUserAgentOverride(d.UserAgentOverride.UserAgent).
			WithAcceptLanguage(d.UserAgentOverride.AcceptLanguage).
			WithPlatform(d.UserAgentOverride.Platform),
		emulation.SetUserAgentOverride(d.UserAgentOverride.UserAgent).
			WithAcceptLanguage(d.UserAgentOverride.AcceptLanguage).
			WithPlatform(d.UserAgentOverride.Platform),
	}

	if d.DeviceMetrics.Mobile {
		actions = append(actions, emulation.SetTouchEmulationEnabled(true))
	}

	if len(d.AcceptedEncodings) > 0 {
		encodings := make([]network.ContentEncoding, 0, len(d.AcceptedEncodings))
		for _, e := range d.AcceptedEncodings {
			encodings = append(encodings, network.ContentEncoding(e))
		}
		actions = append(actions, network.SetAcceptedEncodings(encodings))
	}

	if len(cookies) > 0 {
		actions = append(actions, network.SetCookies(cookies))
	}

	return chromedp.Run(ctx, actions...)
}

func deviceMetricsAction(m DeviceMetrics) chromedp.Action {
	params := emulation.SetDeviceMetricsOverride(m.Width, m.Height, m.DeviceScaleFactor, m.Mobile)
	if m.Scale != 0 {
		params = params.WithScale(m.Scale)
	}
	if m.ScreenWidth != 0 {
		params = params.WithScreenWidth(m.ScreenWidth)
	}
	if m.ScreenHeight != 0 {
		params = params.WithScreenHeight(m.ScreenHeight)
	}
	if m.PositionX != 0 {
		params = params.WithPositionX(m.PositionX)
	}
	if m.PositionY != 0 {
		params = params.WithPositionY(m.PositionY)
	}
	if m.DontSetVisibleSize {
		params = params.WithDontSetVisibleSize(true)
	}
	if m.ScreenOrientation != nil {
		params = params.WithScreenOrientation(&emulation.ScreenOrientation{
			Type:  emulation.OrientationType(m.ScreenOrientation.Type),
			Angle: m.ScreenOrientation.Angle,
		})
	}
	if m.Viewport != nil {
		params = params.WithViewport(&page.Viewport{
			X:      m.Viewport.X,
			Y:      m.Viewport.Y,
			Width:  m.Viewport.Width,
			Height: m.Viewport.Height,
			Scale:  m.Viewport.Scale,
		})
	}
	return params
}

// ToCDPCookie converts one scan-request cookie into the shape
// network.SetCookies expects.
func ToCDPCookie(name, value, domain, path string) *network.CookieParam {
	return &network.CookieParam{
		Name:   name,
		Value:  value,
		Domain: domain,
		Path:   path,
	}
}
