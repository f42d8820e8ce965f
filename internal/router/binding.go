package router

import (
	"fmt"

	"github.com/spf13/viper"
)

type bindingRow struct {
	Channel    uint8  `mapstructure:"channel"`
	Controller uint8  `mapstructure:"controller"`
	Trigger    bool   `mapstructure:"trigger"`
	Target     string `mapstructure:"target"`
}

// LoadBindings reads a MIDI binding table from a TOML file shaped as:
//
//	[[binding]]
//	channel = 1
//	controller = 21
//	target = "intensity"
//
//	[[binding]]
//	channel = 0
//	controller = 22
//	trigger = true
//	target = "next_preset"
//
// It uses its own viper instance rather than the package-global config
// loader, since the binding table is a list of rows, not the single
// engine-settings struct internal/config owns.
func LoadBindings(path string) ([]Binding, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("router: reading binding file: %w", err)
	}

	var rows []bindingRow
	if err := v.UnmarshalKey("binding", &rows); err != nil {
		return nil, fmt.Errorf("router: parsing binding file: %w", err)
	}

	bindings := make([]Binding, 0, len(rows))
	for _, row := range rows {
		bindings = append(bindings, Binding{
			Channel:    row.Channel,
			Controller: row.Controller,
			IsTrigger:  row.Trigger,
			Target:     row.Target,
		})
	}
	return bindings, nil
}
