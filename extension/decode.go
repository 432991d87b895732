package extension

import (
	"github.com/go-viper/mapstructure/v2"
)

// DecodeConfig decodes a raw configuration section into a typed struct. It
// accepts the weakly typed scalars YAML produces and converts duration
// strings such as "30s".
func DecodeConfig(cfg map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(cfg)
}
