package nlp

import "sort"

// alias 是别名表中的一条规范化记录。
type alias struct {
	City string
	Code string
}

// destinationAliases 把小写别名映射到规范城市名与三字码。
// 表在进程生命周期内只读。
var destinationAliases = map[string]alias{
	"new york city": {City: "New York", Code: "NYC"},
	"new york":      {City: "New York", Code: "NYC"},
	"nyc":           {City: "New York", Code: "NYC"},
	"los angeles":   {City: "Los Angeles", Code: "LAX"},
	"lax":           {City: "Los Angeles", Code: "LAX"},
	"san francisco": {City: "San Francisco", Code: "SFO"},
	"sfo":           {City: "San Francisco", Code: "SFO"},
	"london":        {City: "London", Code: "LON"},
	"lon":           {City: "London", Code: "LON"},
	"lhr":           {City: "London", Code: "LHR"},
	"paris":         {City: "Paris", Code: "PAR"},
	"par":           {City: "Paris", Code: "PAR"},
	"tokyo":         {City: "Tokyo", Code: "TYO"},
	"tyo":           {City: "Tokyo", Code: "TYO"},
	"madrid":        {City: "Madrid", Code: "MAD"},
	"mad":           {City: "Madrid", Code: "MAD"},
	"barcelona":     {City: "Barcelona", Code: "BCN"},
	"bcn":           {City: "Barcelona", Code: "BCN"},
	"rome":          {City: "Rome", Code: "ROM"},
	"rom":           {City: "Rome", Code: "ROM"},
	"san diego":     {City: "San Diego", Code: "SAN"},
	"san":           {City: "San Diego", Code: "SAN"},
	"chicago":       {City: "Chicago", Code: "CHI"},
	"chi":           {City: "Chicago", Code: "CHI"},
	"miami":         {City: "Miami", Code: "MIA"},
	"mia":           {City: "Miami", Code: "MIA"},
	"boston":        {City: "Boston", Code: "BOS"},
	"bos":           {City: "Boston", Code: "BOS"},
}

// aliasKeysByLength 按长度降序排列别名键，保证子串匹配
// 永远命中最长的候选（"new york city" 先于 "new york"）。
var aliasKeysByLength = func() []string {
	keys := make([]string, 0, len(destinationAliases))
	for key := range destinationAliases {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()
