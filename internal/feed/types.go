package feed

// rawEvent запись фида в формате the-odds-api v4.
type rawEvent struct {
	ID           string         `json:"id"`
	SportKey     string         `json:"sport_key"`
	SportTitle   string         `json:"sport_title"`
	CommenceTime string         `json:"commence_time"`
	HomeTeam     string         `json:"home_team"`
	AwayTeam     string         `json:"away_team"`
	Bookmakers   []rawBookmaker `json:"bookmakers"`
}

type rawBookmaker struct {
	Key     string      `json:"key"`
	Title   string      `json:"title"`
	Markets []rawMarket `json:"markets"`
}

type rawMarket struct {
	Key      string       `json:"key"`
	Outcomes []rawOutcome `json:"outcomes"`
}

type rawOutcome struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}
