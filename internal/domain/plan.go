package domain

// ActivityCategory drives the icon and colour of a schedule entry.
type ActivityCategory string

const (
	CategorySight     ActivityCategory = "sight"
	CategoryFood      ActivityCategory = "food"
	CategoryTransport ActivityCategory = "transport"
	CategoryHotel     ActivityCategory = "hotel"
)

// DailyPlan holds the ordered activities of one calendar day of a trip.
// There is at most one DailyPlan per (trip, date).
type DailyPlan struct {
	ID         string     `json:"id,omitempty"`
	TripID     string     `json:"tripId,omitempty"`
	Date       string     `json:"date" validate:"required,isodate"`
	Activities []Activity `json:"activities" validate:"dive"`
}

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Activity is one entry of a DailyPlan. ID is assigned on first persist.
// Title is descriptive ("Lunch near the market"); Subtitle is the precise
// place name used for map lookups; Location is the coarse area.
type Activity struct {
	ID          string           `json:"id,omitempty"`
	Time        string           `json:"time" validate:"required,hhmm"`
	Title       string           `json:"title" validate:"notblank"`
	Subtitle    string           `json:"subtitle,omitempty"`
	Location    string           `json:"location,omitempty"`
	Address     string           `json:"address,omitempty"`
	PlaceID     string           `json:"placeId,omitempty"`
	Coordinates *Coordinates     `json:"coordinates,omitempty" validate:"omitempty"`
	Category    ActivityCategory `json:"category" validate:"required,oneof=sight food transport hotel"`
	Note        string           `json:"note,omitempty"`
	ImageURL    string           `json:"imageUrl,omitempty" validate:"omitempty,url"`
	Options     []ActivityOption `json:"options,omitempty" validate:"omitempty,dive"`
	IsLast      bool             `json:"isLast,omitempty"`
}

// ActivityOption is an alternative choice for an activity, e.g. a second
// restaurant if the first is full.
type ActivityOption struct {
	Title       string       `json:"title" validate:"notblank"`
	Subtitle    string       `json:"subtitle,omitempty"`
	Address     string       `json:"address,omitempty"`
	PlaceID     string       `json:"placeId,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty" validate:"omitempty"`
}

// DateItem is one entry of a trip's expanded date range.
type DateItem struct {
	Day      string `json:"day"`      // "03/20"
	Weekday  string `json:"weekday"`  // "Wed"
	FullDate string `json:"fullDate"` // "2024-03-20"
}
