package features

import "strings"

// OneHot names a categorical column and the prefix of its indicator columns.
type OneHot struct {
	Column string
	Prefix string
}

var (
	// CategoricalFrequencyColumns are high-cardinality names encoded by frequency.
	CategoricalFrequencyColumns = []string{"Action Type", "Team Name", "Home Team", "Away Team"}

	// IdentifierFrequencyColumns are numeric identifiers encoded by frequency.
	IdentifierFrequencyColumns = []string{"Game ID", "Game Event ID", "Player ID"}

	OneHotColumns = []OneHot{
		{Column: "Shot Type", Prefix: "ShotType"},
		{Column: "Shot Zone Basic", Prefix: "ShotZoneBasic"},
		{Column: "Shot Zone Area", Prefix: "ShotZoneArea"},
		{Column: "Shot Zone Range", Prefix: "ShotZoneRange"},
		{Column: "Season Type", Prefix: "SeasonType"},
	}

	// DroppedColumns carry no signal and are removed outright.
	DroppedColumns = []string{"Player Name", "Team ID"}
)

// IsIndicator reports whether name is a one-hot indicator column. A vector
// without such a column simply belongs to another category.
func IsIndicator(name string) bool {
	for _, oh := range OneHotColumns {
		if strings.HasPrefix(name, oh.Prefix+"_") {
			return true
		}
	}
	return false
}
