package textprep

// substitutions maps single code points the synthesis model cannot voice
// reliably onto ASCII-safe replacements. No replacement is itself a key, so
// the table can be applied in a single pass in any order.
var substitutions = map[rune]string{
	// Typographic quotes.
	'“': `"`, // left double quotation mark
	'”': `"`, // right double quotation mark
	'‟': `"`, // double high-reversed-9 quotation mark
	'‘': "'", // left single quotation mark
	'’': "'", // right single quotation mark
	'‛': "'", // single high-reversed-9 quotation mark

	// Dashes and hyphens.
	'‐': "-", // hyphen
	'‑': "-", // non-breaking hyphen
	'‒': "-", // figure dash
	'–': "-", // en dash
	'—': "-", // em dash
	'−': "-", // minus sign

	'…': "...", // horizontal ellipsis

	// Latin vowels with diacritics, lower case.
	'á': "a", 'à': "a", 'â': "a", 'ä': "a", 'ā': "a", 'ã': "a", 'å': "a", 'ą': "a",
	'é': "e", 'è': "e", 'ê': "e", 'ë': "e", 'ē': "e", 'ė': "e", 'ę': "e",
	'í': "i", 'ì': "i", 'î': "i", 'ï': "i", 'ī': "i", 'į': "i", 'ĩ': "i",
	'ó': "o", 'ò': "o", 'ô': "o", 'ö': "o", 'ō': "o", 'õ': "o", 'ø': "o",
	'ú': "u", 'ù': "u", 'û': "u", 'ü': "u", 'ū': "u", 'ũ': "u", 'ů': "u", 'ų': "u",
	'ñ': "n", 'ç': "c",

	// Latin vowels with diacritics, upper case.
	'Á': "A", 'À': "A", 'Â': "A", 'Ä': "A", 'Ā': "A", 'Ã': "A", 'Å': "A", 'Ą': "A",
	'É': "E", 'È': "E", 'Ê': "E", 'Ë': "E", 'Ē': "E", 'Ė': "E", 'Ę': "E",
	'Í': "I", 'Ì': "I", 'Î': "I", 'Ï': "I", 'Ī': "I", 'Į': "I", 'Ĩ': "I", 'İ': "I",
	'Ó': "O", 'Ò': "O", 'Ô': "O", 'Ö': "O", 'Ō': "O", 'Õ': "O", 'Ø': "O",
	'Ú': "U", 'Ù': "U", 'Û': "U", 'Ü': "U", 'Ū': "U", 'Ũ': "U", 'Ů': "U", 'Ų': "U",
	'Ñ': "N", 'Ç': "C",

	// Glottal stop and hamzah marks pasted in place of an apostrophe.
	'ʹ': "'", // modifier letter prime
	'ʻ': "'", // modifier letter turned comma
	'ʼ': "'", // modifier letter apostrophe
	'ʽ': "'", // modifier letter reversed comma
	'ʾ': "'", // modifier letter right half ring
	'ʿ': "'", // modifier letter left half ring

	// Guillemets and low quotation marks.
	'«': `"`,
	'»': `"`,
	'‹': "<",
	'›': ">",
	'‚': ",", // single low-9 quotation mark
	'„': `"`, // double low-9 quotation mark
}

// Substitution returns the replacement for r and whether one is defined.
func Substitution(r rune) (string, bool) {
	s, ok := substitutions[r]
	return s, ok
}
