package fetcher

import (
	"strings"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
)

// SportQueries is one row of the query variants table.
type SportQueries struct {
	Sport   model.Sport
	Queries []string
}

// QueryVariants lists search phrases per sport. The order matters for Categorize.
var QueryVariants = []SportQueries{
	{model.Soccer, []string{"soccer", "premier league", "champions league"}},
	{model.Formula1, []string{"f1", "formula 1", "formula one"}},
	{model.Rugby, []string{"rugby"}},
	{model.Tennis, []string{"tennis", "atp", "wta"}},
	{model.Golf, []string{"golf", "pga"}},
	{model.Boxing, []string{"boxing", "ufc"}},
	{model.Basketball, []string{"nba", "basketball"}},
	{"cricket", []string{"cricket"}},
}

// queriesFor returns at most n query variants for sport. Sports without a
// table entry search for their own name.
func queriesFor(sport model.Sport, n int) []string {
	queries := []string{string(sport)}
	for _, row := range QueryVariants {
		if row.Sport == sport {
			queries = row.Queries
			break
		}
	}
	if n > 0 && len(queries) > n {
		queries = queries[:n]
	}
	return queries
}

// Categorize assigns a sport by keyword match over text (typically title and
// summary), in table order. Text matching nothing is model.General.
func Categorize(text string) model.Sport {
	text = strings.ToLower(text)
	for _, row := range QueryVariants {
		for _, kw := range row.Queries {
			if strings.Contains(text, kw) {
				return row.Sport
			}
		}
	}
	return model.General
}
