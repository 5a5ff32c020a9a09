package commentary

// trivialScoreThreshold is the centipawn advantage beyond which a
// position is considered decided and nuanced commentary adds no value.
const trivialScoreThreshold = 700

// trivial reports whether the evaluation is decisive enough to skip the
// generation call entirely.
func trivial(req Request) bool {
	if req.Mate != nil {
		return true
	}
	if req.Score != nil {
		s := *req.Score
		if s < 0 {
			s = -s
		}
		return s >= trivialScoreThreshold
	}
	return false
}

// trivialText returns the short fixed string for a decided position.
func trivialText(req Request) string {
	winning := false
	switch {
	case req.Mate != nil:
		winning = *req.Mate > 0
	case req.Score != nil:
		winning = *req.Score > 0
	}

	es := req.Language == "es"
	if req.Mate != nil {
		if es {
			if winning {
				return "Hay mate forzado. La partida está decidida."
			}
			return "El rival tiene mate forzado. La partida está decidida."
		}
		if winning {
			return "There is a forced mate on the board. The game is decided."
		}
		return "Your opponent has a forced mate. The game is decided."
	}

	if es {
		if winning {
			return "La posición está completamente ganada. Convierte con calma."
		}
		return "La posición está perdida. Busca complicaciones prácticas."
	}
	if winning {
		return "The position is completely winning. Convert calmly."
	}
	return "The position is lost on material. Look for practical chances."
}
