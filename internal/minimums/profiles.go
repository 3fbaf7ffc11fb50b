package minimums

import "github.com/skysched/flightwx/internal/types"

func ftPtr(v float64) *float64  { return &v }
func ktsPtr(v float64) *float64 { return &v }

// profiles maps each training level to its minimums. Constraints relax
// monotonically as capability increases; instrument-rated pilots have no
// ceiling or crosswind limit.
var profiles = map[types.TrainingLevel]types.MinimumsProfile{
	types.TrainingLevelNovice: {
		Level:           types.TrainingLevelNovice,
		MinVisibilitySM: 5,
		MinCeilingFt:    ftPtr(3000),
		MaxWindKts:      12,
		MaxCrosswindKts: ktsPtr(5),
		Allowed:         []types.Condition{types.CondClear, types.CondClouds},
		Prohibited: []types.Condition{
			types.CondRain, types.CondDrizzle, types.CondSnow, types.CondFog,
			types.CondMist, types.CondThunderstorm, types.CondIcing, types.CondHail,
		},
	},
	types.TrainingLevelCertified: {
		Level:           types.TrainingLevelCertified,
		MinVisibilitySM: 3,
		MinCeilingFt:    ftPtr(1500),
		MaxWindKts:      20,
		MaxCrosswindKts: ktsPtr(10),
		Allowed: []types.Condition{
			types.CondClear, types.CondClouds, types.CondDrizzle, types.CondMist,
		},
		Prohibited: []types.Condition{
			types.CondSnow, types.CondFog, types.CondThunderstorm,
			types.CondIcing, types.CondHail,
		},
	},
	types.TrainingLevelInstrument: {
		Level:           types.TrainingLevelInstrument,
		MinVisibilitySM: 1,
		MaxWindKts:      30,
		Allowed: []types.Condition{
			types.CondClear, types.CondClouds, types.CondRain, types.CondDrizzle,
			types.CondFog, types.CondMist, types.CondSnow,
		},
		Prohibited: []types.Condition{
			types.CondThunderstorm, types.CondIcing, types.CondHail,
		},
	},
}

// ProfileFor returns the minimums profile for a training level. Unknown
// levels fall back to the novice profile, the most conservative one.
func ProfileFor(level types.TrainingLevel) types.MinimumsProfile {
	if p, ok := profiles[level]; ok {
		return p
	}
	return profiles[types.TrainingLevelNovice]
}
