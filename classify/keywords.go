// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package classify

import "strings"

type subject struct {
	name     string
	triggers []string
	keywords []string
}

// subjects is checked in order; the first subject whose trigger matches wins.
var subjects = []subject{
	{
		name:     "programming",
		triggers: []string{"cs", "cis", "cse", "comp", "computer", "computing", "programming", "software", "algorithms"},
		keywords: []string{"algorithm", "function", "database", "variable", "compiler", "recursion", "array", "pointer", "complexity", "loop", "class", "object"},
	},
	{
		name:     "mathematics",
		triggers: []string{"ma", "mat", "math", "mathematics", "calculus", "algebra", "geometry", "statistics"},
		keywords: []string{"derivative", "integral", "theorem", "proof", "matrix", "equation", "limit", "vector", "polynomial", "lemma"},
	},
	{
		name:     "physics",
		triggers: []string{"ph", "phy", "phys", "physics", "mechanics", "thermodynamics"},
		keywords: []string{"velocity", "acceleration", "momentum", "energy", "force", "quantum", "particle", "wave", "gravity", "entropy"},
	},
	{
		name:     "chemistry",
		triggers: []string{"ch", "chem", "chemistry", "organic", "biochemistry"},
		keywords: []string{"molecule", "reaction", "bond", "electron", "acid", "compound", "catalyst", "oxidation", "isotope", "solution"},
	},
	{
		name:     "biology",
		triggers: []string{"bi", "bio", "biol", "biology", "genetics", "ecology"},
		keywords: []string{"cell", "protein", "enzyme", "gene", "evolution", "organism", "species", "membrane", "mitosis", "ecosystem"},
	},
	{
		name:     "economics",
		triggers: []string{"ec", "eco", "econ", "economics", "finance", "microeconomics", "macroeconomics"},
		keywords: []string{"market", "demand", "supply", "inflation", "price", "elasticity", "equilibrium", "monetary", "fiscal", "utility"},
	},
	{
		name:     "history",
		triggers: []string{"hi", "his", "hist", "history"},
		keywords: []string{"century", "empire", "revolution", "war", "treaty", "dynasty", "colonial", "medieval", "civilization", "monarchy"},
	},
	{
		name:     "literature",
		triggers: []string{"en", "eng", "lit", "english", "literature", "poetry", "writing"},
		keywords: []string{"novel", "poem", "narrative", "metaphor", "character", "theme", "author", "prose", "sonnet", "symbolism"},
	},
}

// inferKeywords returns the curated keyword set of the first subject whose
// triggers match the code's alphabetic prefix or a word of the name.
func inferKeywords(code, name string) []string {
	prefix := strings.ToLower(alphaPrefix(code))
	words := tokenize(name)

	for _, s := range subjects {
		for _, trig := range s.triggers {
			if prefix == trig {
				return s.keywords
			}
			for _, w := range words {
				if w == trig {
					return s.keywords
				}
			}
		}
	}
	return nil
}

func alphaPrefix(code string) string {
	for i, r := range code {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return code[:i]
		}
	}
	return code
}
