package unit

import "strings"

// Type classifies a unit within an address.
type Type string

// Unit types, in the order Russian and English dictionaries check them.
const (
	Flat       Type = "flat"
	Parking    Type = "parking"
	Commercial Type = "commercial"
	Warehouse  Type = "warehouse"
	Apartment  Type = "apartment"
)

// Types lists every unit type.
var Types = []Type{Flat, Parking, Commercial, Warehouse, Apartment}

// Keywords binds a unit type to the words that introduce it.
type Keywords struct {
	Type  Type
	Words []string
}

// Dictionary is a per-language keyword set. Units are checked in order:
// the first type whose keyword appears in a unit part wins.
type Dictionary struct {
	Lang     string
	Units    []Keywords
	HouseIDs []string
}

// Russian is the default dictionary.
var Russian = Dictionary{
	Lang: "ru",
	Units: []Keywords{
		{Flat, []string{"квартира", "кв"}},
		{Parking, []string{"машиноместо", "машино-место", "м/м", "мм", "парковочное место", "парковка", "паркинг", "гараж"}},
		{Commercial, []string{"нежилое помещение", "помещение", "пом", "офис", "оф"}},
		{Warehouse, []string{"кладовая", "кладовка", "кл", "хозблок", "склад"}},
		{Apartment, []string{"апартаменты", "апартамент", "апарт", "ап"}},
	},
	HouseIDs: []string{"дом", "д", "строение", "стр", "корпус", "корп", "к", "владение", "вл", "здание", "зд"},
}

// English covers addresses typed with English unit words.
var English = Dictionary{
	Lang: "en",
	Units: []Keywords{
		{Flat, []string{"flat", "apt", "unit"}},
		{Parking, []string{"parking space", "parking spot", "parking", "garage"}},
		{Commercial, []string{"suite", "ste", "office", "premises", "shop"}},
		{Warehouse, []string{"storage unit", "storage", "storeroom", "locker"}},
		{Apartment, []string{"serviced apartment", "aparthotel"}},
	},
	HouseIDs: []string{"house", "building", "bldg", "block"},
}

// DictionaryFor returns the dictionary for a language code, falling back
// to Russian for anything unknown.
func DictionaryFor(lang string) Dictionary {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "en", "eng", "english":
		return English
	default:
		return Russian
	}
}
