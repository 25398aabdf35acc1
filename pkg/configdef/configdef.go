package configdef

import (
	"errors"
	"fmt"

	"gopkg.in/dealancer/validate.v2"
)

type Device struct {
	Backend      string `json:"backend" validate:"one_of=mock,opencv"`
	DeviceID     string `json:"device_id"`
	Title        string `json:"title" validate:"empty=false"`
	Width        int    `json:"width" validate:"gte=16 & lte=7680"`
	Height       int    `json:"height" validate:"gte=16 & lte=4320"`
	PixelFormat  string `json:"pixel_format" validate:"one_of=yuv420,gray8,rgb24"`
	PoolCapacity int    `json:"pool_capacity" validate:"gte=2 & lte=16"`
	FPS          int    `json:"fps" validate:"gte=1 & lte=120"`
	InboxSize    int    `json:"inbox_size" validate:"gte=1 & lte=16"`
}

type Pipeline struct {
	TransformEnabled bool    `json:"transform_enabled"`
	Transform        string  `json:"transform" validate:"one_of=sobel,canny"`
	Threshold        int     `json:"threshold" validate:"gte=0 & lte=1020"`
	CannyLow         float32 `json:"canny_low"`
	CannyHigh        float32 `json:"canny_high"`
}

type API struct {
	Enabled       bool   `json:"enabled"`
	ListenAddress string `json:"listen_address"`
	Secret        string `json:"secret"`
	PasswordHash  string `json:"password_hash"`
}

type Stats struct {
	LogFPS              bool `json:"log_fps"`
	PersistHistory      bool `json:"persist_history"`
	MaxHistoryAgeInDays int  `json:"max_history_age_in_days" validate:"gte=1 & lte=365"`
}

type Values struct {
	Debug    bool     `json:"debug"`
	Device   Device   `json:"device"`
	Pipeline Pipeline `json:"pipeline"`
	API      API      `json:"api"`
	Stats    Stats    `json:"stats"`
}

// RunValidate checks the struct tags first, then the rules spanning
// more than one field.
func (v Values) RunValidate() error {
	if err := validate.Validate(&v); err != nil {
		return err
	}
	return v.Validate()
}

func (v Values) Validate() error {
	const validationErrorHeader = "validation failed: %w"
	if v.API.Enabled {
		if len(v.API.Secret) == 0 {
			return fmt.Errorf(validationErrorHeader, errors.New("api secret must be set when the api is enabled"))
		}
		if len(v.API.PasswordHash) == 0 {
			return fmt.Errorf(validationErrorHeader, errors.New("api password hash must be set when the api is enabled, run setup"))
		}
	}
	if v.Device.PixelFormat == "yuv420" && (v.Device.Width%2 != 0 || v.Device.Height%2 != 0) {
		return fmt.Errorf(validationErrorHeader, errors.New("yuv420 capture needs an even width and height"))
	}
	if v.Pipeline.Transform == "canny" && v.Pipeline.CannyLow > v.Pipeline.CannyHigh {
		return fmt.Errorf(validationErrorHeader, errors.New("canny low threshold must not exceed the high threshold"))
	}
	return nil
}
