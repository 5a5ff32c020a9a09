package commentary

import "strings"

// Fingerprint reduces a FEN to its position-identifying fields, dropping
// the halfmove and fullmove counters so transpositions into the same
// position share cache entries.
func Fingerprint(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

const (
	startFingerprint    = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -"
	afterE4Fingerprint  = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPPPPPP/RNBQKBNR b KQkq e3"
	afterD4Fingerprint  = "rnbqkbnr/pppppppp/8/8/3P4/8/PPPPPPPP/RNBQKBNR b KQkq d3"
)

// canned maps well-known fingerprints to fixed commentary per
// "language|mode". These positions need no generation call.
var canned = map[string]map[string]string{
	startFingerprint: {
		"en|beginner": "The game begins. Develop your pieces, control the center, and keep your king safe.",
		"en|expert":   "Starting position. All mainline openings remain on the table.",
		"es|beginner": "Comienza la partida. Desarrolla tus piezas, controla el centro y protege a tu rey.",
		"es|expert":   "Posición inicial. Todas las aperturas principales siguen disponibles.",
	},
	afterE4Fingerprint: {
		"en|beginner": "The king's pawn advances two squares, staking a claim in the center.",
		"en|expert":   "1.e4 — the most principled try for a central space advantage.",
		"es|beginner": "El peón de rey avanza dos casillas y reclama el centro.",
		"es|expert":   "1.e4, la apuesta más directa por el centro.",
	},
	afterD4Fingerprint: {
		"en|beginner": "The queen's pawn steps forward, opening lines for the bishop and queen.",
		"en|expert":   "1.d4 — closed-game territory, with long-term central pressure.",
		"es|beginner": "El peón de dama avanza y abre líneas para el alfil y la dama.",
		"es|expert":   "1.d4, terreno de juego cerrado con presión central a largo plazo.",
	},
}

// cannedFor returns fixed commentary for a well-known fingerprint,
// falling back to the English beginner line when the exact language and
// mode combination is missing.
func cannedFor(fingerprint, language, mode string) (string, bool) {
	byVariant, ok := canned[fingerprint]
	if !ok {
		return "", false
	}
	if text, ok := byVariant[language+"|"+mode]; ok {
		return text, true
	}
	if text, ok := byVariant["en|beginner"]; ok {
		return text, true
	}
	return "", false
}
