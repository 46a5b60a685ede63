package detection

// lookalikes maps confusable letters that survive compatibility decomposition
// to their Latin prototype, following the Unicode TR39 confusables table.
var lookalikes = map[rune]string{
	// Cyrillic
	'а': "a", 'в': "b", 'с': "c", 'ԁ': "d", 'е': "e", 'ё': "e", 'һ': "h",
	'і': "i", 'ї': "i", 'ј': "j", 'к': "k", 'ӏ': "l", 'м': "m", 'п': "n",
	'о': "o", 'р': "p", 'ԛ': "q", 'г': "r", 'ѕ': "s", 'т': "t",
	'ѵ': "v", 'ԝ': "w", 'х': "x", 'у': "y",
	'А': "a", 'В': "b", 'С': "c", 'Е': "e", 'Н': "h", 'І': "i", 'Ј': "j",
	'К': "k", 'М': "m", 'О': "o", 'Р': "p", 'Ѕ': "s", 'Т': "t", 'Х': "x",
	'У': "y",

	// Greek
	'α': "a", 'β': "b", 'ϲ': "c", 'ε': "e", 'η': "n", 'ι': "i", 'κ': "k",
	'ν': "v", 'ο': "o", 'ρ': "p", 'τ': "t", 'υ': "u", 'χ': "x", 'γ': "y",
	'Α': "a", 'Β': "b", 'Ε': "e", 'Η': "h", 'Ι': "i", 'Κ': "k", 'Μ': "m",
	'Ν': "n", 'Ο': "o", 'Ρ': "p", 'Τ': "t", 'Χ': "x", 'Υ': "y", 'Ζ': "z",

	// Latin extensions
	'ı': "i", 'ȷ': "j", 'ɡ': "g", 'ɑ': "a", 'ɩ': "i", 'ʟ': "l", 'ɴ': "n",
	'ǀ': "l", 'ℓ': "l", 'ꞵ': "b", 'ꜱ': "s", 'ᴅ': "d", 'ᴏ': "o", 'ᴜ': "u",
	'ᴠ': "v", 'ᴡ': "w", 'ᴢ': "z", 'ʐ': "z",
}
