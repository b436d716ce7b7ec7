package pipeline

// Stage 声明流水线中的一个阶段。阶段按声明顺序串行执行，
// Upstream 列出的阶段输出会拼进本阶段的提示词。
type Stage struct {
	ID             string
	Description    string
	ExpectedOutput string
	Upstream       []string
}

// 四个阶段的固定标识。
const (
	StageResolve       = "resolve_destination"
	StageSearchFlights = "search_flights"
	StageSearchHotels  = "search_hotels"
	StageCombine       = "combine_results"
)

// stages 是流水线的完整声明，顺序即执行顺序。
var stages = []Stage{
	{
		ID: StageResolve,
		Description: "Analyze the traveler's natural language query and extract the primary " +
			"destination they want to travel to, including its IATA city code when it can " +
			"be determined.",
		ExpectedOutput: `A minified JSON object with exactly two keys: "destination" ` +
			`(city name or null) and "destinationCode" (3-letter IATA code or null).`,
	},
	{
		ID: StageSearchFlights,
		Description: "Search for flights departing today to the resolved destination for " +
			"a single adult passenger, using the destination's IATA code.",
		ExpectedOutput: `A JSON array of at most 5 flight objects, each with exactly the ` +
			`keys "airline", "flightNumber", "from", "to" and "price". An empty JSON ` +
			`array when no flights are available.`,
		Upstream: []string{StageResolve},
	},
	{
		ID: StageSearchHotels,
		Description: "Search for hotels in the resolved destination city for a one night " +
			"stay starting today, one room with one adult.",
		ExpectedOutput: `A JSON array of at most 5 hotel objects, each with exactly the ` +
			`keys "id", "name", "location" and "pricePerNight". An empty JSON array ` +
			`when no hotels are available.`,
		Upstream: []string{StageResolve},
	},
	{
		ID: StageCombine,
		Description: "Combine the flight search results and the hotel search results " +
			"into one final answer for the traveler.",
		ExpectedOutput: `A single JSON object with exactly the keys "flights" and ` +
			`"hotels" holding the two arrays unchanged. Empty arrays stay empty arrays.`,
		Upstream: []string{StageSearchFlights, StageSearchHotels},
	},
}

// Stages 返回流水线声明的副本，供展示或测试使用。
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}
