package signal

import (
	"fmt"
)

// Technology identifies the radio access technology a Reading was observed on.
type Technology uint8

const (
	WiFi Technology = iota + 1
	Bluetooth
	GSM
	WCDMA
	LTE
	NewRadio
	CDMA
)

// Category groups technologies the way they are presented and summarized.
type Category uint8

const (
	CategoryWiFi Category = iota + 1
	CategoryBluetooth
	CategoryCellular
)

var technologyNames = map[Technology]string{
	WiFi:      "wifi",
	Bluetooth: "bluetooth",
	GSM:       "gsm",
	WCDMA:     "wcdma",
	LTE:       "lte",
	NewRadio:  "nr",
	CDMA:      "cdma",
}

// Technologies lists every known technology, cellular ones in the order they are queried.
var Technologies = []Technology{WiFi, Bluetooth, GSM, WCDMA, LTE, NewRadio, CDMA}

// Categories lists the categories in slot order.
var Categories = []Category{CategoryWiFi, CategoryBluetooth, CategoryCellular}

func (t Technology) String() string {
	if name, ok := technologyNames[t]; ok {
		return name
	}
	return fmt.Sprintf("technology(%d)", uint8(t))
}

func (t Technology) MarshalText() ([]byte, error) {
	name, ok := technologyNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown technology %d", uint8(t))
	}
	return []byte(name), nil
}

func (t *Technology) UnmarshalText(text []byte) error {
	for tech, name := range technologyNames {
		if name == string(text) {
			*t = tech
			return nil
		}
	}
	return fmt.Errorf("unknown technology %q", string(text))
}

// Category returns the category the technology belongs to.
func (t Technology) Category() Category {
	switch t {
	case WiFi:
		return CategoryWiFi
	case Bluetooth:
		return CategoryBluetooth
	default:
		return CategoryCellular
	}
}

// IsCellular reports whether t is one of the cellular technologies.
func (t Technology) IsCellular() bool {
	return t.Category() == CategoryCellular
}

func (c Category) String() string {
	switch c {
	case CategoryWiFi:
		return "wifi"
	case CategoryBluetooth:
		return "bluetooth"
	case CategoryCellular:
		return "cellular"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// Technologies returns the technologies queried for the category.
func (c Category) Technologies() []Technology {
	switch c {
	case CategoryWiFi:
		return []Technology{WiFi}
	case CategoryBluetooth:
		return []Technology{Bluetooth}
	case CategoryCellular:
		return []Technology{GSM, WCDMA, LTE, NewRadio, CDMA}
	default:
		return nil
	}
}

// Placeholder returns the technology whose sentinel stands in for an empty category.
func (c Category) Placeholder() Technology {
	switch c {
	case CategoryWiFi:
		return WiFi
	case CategoryBluetooth:
		return Bluetooth
	default:
		return GSM
	}
}
