package matcher

import (
	"regexp"
	"strings"
)

// Known PC hardware brands, longest first so multi-word names match before
// their abbreviations ("Western Digital" before "WD").
var knownBrands = []string{
	"AMD", "Intel", "NVIDIA", "Gigabyte", "ASUS", "MSI", "EVGA", "Zotac",
	"Sapphire", "PowerColor", "XFX", "ASRock", "Corsair", "G.Skill",
	"Kingston", "Crucial", "Samsung", "Seagate", "Western Digital", "WD",
	"Noctua", "be quiet!", "Cooler Master", "Lian Li", "Fractal Design",
	"Phanteks", "NZXT", "Seasonic", "Super Flower", "Antec", "Thermaltake",
	"Logitech", "Razer", "SteelSeries", "HyperX", "BenQ", "LG", "Dell",
	"Acer", "ViewSonic", "AOC",
}

// Retailer boilerplate stripped before matching. These phrases carry no
// product identity and differ per shop.
var stopPhrases = []string{
	"free shipping", "free delivery", "fast shipping", "in stock",
	"out of stock", "limited stock", "while stocks last", "clearance",
	"special order", "on sale", "hot deal", "new arrival",
}

var (
	spaceRe   = regexp.MustCompile(`\s+`)
	nonAlnum  = regexp.MustCompile(`[^a-z0-9]+`)
	gpuModel  = regexp.MustCompile(`\b(rtx|gtx|rx|arc)\s*-?\s*a?(\d{3,4})(?:\s*-?\s*(ti|super|xt|xtx|gre))?\b`)
	cpuRyzen  = regexp.MustCompile(`\bryzen\s*(\d)\s*(\d{3,4}[a-z]{0,3}\d?)\b`)
	cpuIntel  = regexp.MustCompile(`\b(?:core\s*)?i([3579])[\s-]*(\d{4,5}[a-z]{0,2})\b`)
	unitToken = regexp.MustCompile(`^\d+(gb|tb|mb|ghz|mhz|hz|w|mm|cm|in|inch|rpm|pin)$`)
)

func init() {
	// Longest-first ordering makes multi-word brand matching deterministic.
	for i := 1; i < len(knownBrands); i++ {
		for j := i; j > 0 && len(knownBrands[j]) > len(knownBrands[j-1]); j-- {
			knownBrands[j], knownBrands[j-1] = knownBrands[j-1], knownBrands[j]
		}
	}
}

// Normalized is the matcher's view of a raw listing title: cleaned display
// title, comparable token set, recognized brand/model, and the inferred
// category slug (empty when the title carries no category signal).
type Normalized struct {
	CleanTitle string
	Tokens     []string
	Brand      string
	Model      string
	Category   string
}

// Normalize turns a raw retailer title into its comparable form. The
// pipeline is pure data transformation: strip boilerplate, case-fold,
// tokenize, extract model identifier, infer category.
func Normalize(rawTitle string) Normalized {
	clean := spaceRe.ReplaceAllString(strings.TrimSpace(rawTitle), " ")
	lower := strings.ToLower(clean)
	for _, phrase := range stopPhrases {
		if idx := strings.Index(lower, phrase); idx >= 0 {
			clean = strings.TrimSpace(clean[:idx] + clean[idx+len(phrase):])
			clean = spaceRe.ReplaceAllString(clean, " ")
			lower = strings.ToLower(clean)
		}
	}
	clean = strings.Trim(clean, " -|,")
	lower = strings.ToLower(clean)

	n := Normalized{
		CleanTitle: clean,
		Model:      extractModel(lower),
		Brand:      extractBrand(lower),
	}
	n.Tokens = tokenize(lower)
	n.Category = inferCategory(lower, n.Tokens)
	return n
}

// extractModel pulls the canonical model identifier out of a lower-cased
// title: GPU series+number, Ryzen, Intel Core, then a generic alphanumeric
// fallback. The canonical form is glued and lower-cased ("rtx4070ti").
func extractModel(lower string) string {
	if m := gpuModel.FindStringSubmatch(lower); m != nil {
		return m[1] + m[2] + m[3]
	}
	if m := cpuRyzen.FindStringSubmatch(lower); m != nil {
		return "ryzen" + m[1] + m[2]
	}
	if m := cpuIntel.FindStringSubmatch(lower); m != nil {
		return "i" + m[1] + m[2]
	}
	// Fallback: the longest mixed alphanumeric token that is not a size or
	// frequency unit ("980pro", "mag274qrf").
	best := ""
	for _, tok := range strings.Fields(nonAlnum.ReplaceAllString(lower, " ")) {
		if len(tok) < 4 || len(tok) <= len(best) {
			continue
		}
		if !strings.ContainsAny(tok, "0123456789") || !strings.ContainsAny(tok, "abcdefghijklmnopqrstuvwxyz") {
			continue
		}
		if unitToken.MatchString(tok) || interfaceTokens[tok] {
			continue
		}
		best = tok
	}
	return best
}

var interfaceTokens = map[string]bool{
	"ddr4": true, "ddr5": true, "pcie": true, "pcie4": true, "pcie5": true,
	"usb3": true, "usb4": true, "wifi6": true, "wifi6e": true, "wifi7": true,
	"gen4": true, "gen5": true, "hdmi2": true, "sata3": true, "rgb": true,
	"argb": true, "atx3": true, "80plus": true,
}

func extractBrand(lower string) string {
	padded := " " + lower + " "
	for _, brand := range knownBrands {
		b := strings.ToLower(brand)
		if strings.Contains(padded, " "+b+" ") || strings.HasPrefix(lower, b) {
			return brand
		}
	}
	return ""
}

// tokenize splits the title into lower-cased tokens, gluing GPU model pairs
// ("rtx 4070" and "rtx4070" tokenize identically).
func tokenize(lower string) []string {
	glued := gpuModel.ReplaceAllString(lower, "$1$2$3")
	fields := strings.Fields(nonAlnum.ReplaceAllString(glued, " "))
	seen := make(map[string]bool, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}
	return tokens
}

// categoryRule maps token signals to a category slug. Rules are checked in
// order; the GPU rule runs before the monitor rule so "RTX 4070 144Hz
// bundle" lands in graphics cards.
type categoryRule struct {
	slug   string
	tokens []string
}

var categoryRules = []categoryRule{
	{"graphics-cards", []string{"rtx", "gtx", "geforce", "radeon", "gpu", "graphics"}},
	{"memory", []string{"ddr4", "ddr5", "dimm", "sodimm", "ram", "memory"}},
	{"storage", []string{"ssd", "nvme", "hdd", "harddrive", "m2", "sata"}},
	{"motherboards", []string{"motherboard", "mainboard", "am4", "am5", "lga1700", "lga1851", "b550", "b650", "x570", "x670", "z690", "z790", "h610"}},
	{"power-supplies", []string{"psu", "powersupply", "modular", "80plus"}},
	// Cooling outranks the CPU keywords so "CPU Cooler" lands here; real
	// CPU titles are caught by the model regexes above.
	{"cooling", []string{"cooler", "cooling", "aio", "heatsink", "radiator", "fan"}},
	{"cpus", []string{"ryzen", "threadripper", "processor", "cpu", "core"}},
	{"cases", []string{"case", "tower", "chassis"}},
	{"monitors", []string{"monitor", "curved", "ultrawide", "ips", "oled"}},
	{"peripherals", []string{"keyboard", "mouse", "headset", "webcam", "mousepad", "controller"}},
}

func inferCategory(lower string, tokens []string) string {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	// Multi-word signals the tokenizer splits apart.
	if strings.Contains(lower, "power supply") {
		return "power-supplies"
	}
	if strings.Contains(lower, "hard drive") {
		return "storage"
	}
	// A GPU model identifier is a category signal on its own.
	if gpuModel.MatchString(lower) {
		return "graphics-cards"
	}
	if cpuRyzen.MatchString(lower) || cpuIntel.MatchString(lower) {
		return "cpus"
	}
	for _, rule := range categoryRules {
		for _, tok := range rule.tokens {
			if set[tok] {
				return rule.slug
			}
		}
	}
	return ""
}
