package config

import "github.com/tauraamui/edgeview/pkg/configdef"

type defaultSettingKey uint

const (
	BACKEND             defaultSettingKey = 0x0
	TITLE               defaultSettingKey = 0x1
	WIDTH               defaultSettingKey = 0x2
	HEIGHT              defaultSettingKey = 0x3
	PIXELFORMAT         defaultSettingKey = 0x4
	POOLCAPACITY        defaultSettingKey = 0x5
	FPS                 defaultSettingKey = 0x6
	INBOXSIZE           defaultSettingKey = 0x7
	TRANSFORM           defaultSettingKey = 0x8
	THRESHOLD           defaultSettingKey = 0x9
	CANNYLOW            defaultSettingKey = 0xa
	CANNYHIGH           defaultSettingKey = 0xb
	LISTENADDRESS       defaultSettingKey = 0xc
	MAXHISTORYAGEINDAYS defaultSettingKey = 0xd
)

var defaultSettings = map[defaultSettingKey]interface{}{
	BACKEND:             "mock",
	TITLE:               "camera",
	WIDTH:               640,
	HEIGHT:              480,
	PIXELFORMAT:         "yuv420",
	POOLCAPACITY:        2,
	FPS:                 30,
	INBOXSIZE:           2,
	TRANSFORM:           "sobel",
	THRESHOLD:           128,
	CANNYLOW:            float32(50),
	CANNYHIGH:           float32(150),
	LISTENADDRESS:       ":3121",
	MAXHISTORYAGEINDAYS: 7,
}

// defaultValues is what a config file leaves unspecified starts out as.
// Booleans default on here since json only overwrites keys it finds.
func defaultValues() configdef.Values {
	values := configdef.Values{}
	values.Pipeline.TransformEnabled = true
	applyDefaults(&values)
	return values
}

func applyDefaults(values *configdef.Values) {
	setString(&values.Device.Backend, BACKEND)
	setString(&values.Device.Title, TITLE)
	setInt(&values.Device.Width, WIDTH)
	setInt(&values.Device.Height, HEIGHT)
	setString(&values.Device.PixelFormat, PIXELFORMAT)
	setInt(&values.Device.PoolCapacity, POOLCAPACITY)
	setInt(&values.Device.FPS, FPS)
	setInt(&values.Device.InboxSize, INBOXSIZE)
	setString(&values.Pipeline.Transform, TRANSFORM)
	setInt(&values.Pipeline.Threshold, THRESHOLD)
	if values.Pipeline.CannyLow == 0 && values.Pipeline.CannyHigh == 0 {
		values.Pipeline.CannyLow = defaultSettings[CANNYLOW].(float32)
		values.Pipeline.CannyHigh = defaultSettings[CANNYHIGH].(float32)
	}
	setString(&values.API.ListenAddress, LISTENADDRESS)
	setInt(&values.Stats.MaxHistoryAgeInDays, MAXHISTORYAGEINDAYS)
}

func setString(v *string, key defaultSettingKey) {
	if len(*v) == 0 {
		*v = defaultSettings[key].(string)
	}
}

func setInt(v *int, key defaultSettingKey) {
	if *v == 0 {
		*v = defaultSettings[key].(int)
	}
}
