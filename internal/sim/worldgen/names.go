package worldgen

var prefixes = [...]string{
	"Al", "Bel", "Cor", "Dra", "El", "Far", "Gal", "Hel", "Ion", "Kel",
	"Lyr", "Mal", "Neb", "Ori", "Pax", "Qua", "Rig", "Sol", "Tau", "Ura",
	"Veg", "Wol", "Xen", "Yed", "Zet",
}

var middles = [...]string{
	"ar", "en", "ir", "on", "ur", "ax", "ex", "ix", "ox", "ux",
	"an", "in", "un", "as", "is", "os", "us", "at", "et", "it",
}

var suffixes = [...]string{
	"a", "i", "o", "us", "is", "on", "ar", "or", "ix", "ax",
	"ia", "io", "ius", "ium", "ara", "ora", "ira", "ura", "era",
}

// NameSpace is the number of distinct generated names.
const NameSpace = len(prefixes) * len(middles) * len(suffixes)
