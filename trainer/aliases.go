package trainer

// DefaultAliases are alternative words forms use for common profile keys.
// Suggest scores a label token against a key and against each of its aliases.
var DefaultAliases = map[string][]string{
	"phone":        {"mobile", "cell", "tel", "telephone", "gsm"},
	"phone number": {"mobile", "cell", "tel", "telephone"},
	"email":        {"mail", "courriel"},
	"zip":          {"postal", "postcode", "postalcode"},
	"postal code":  {"zip", "postcode"},
	"first name":   {"given", "forename", "prenom"},
	"last name":    {"surname", "family", "nom"},
	"company":      {"organization", "organisation", "employer", "business"},
	"address":      {"addr", "street"},
	"city":         {"town", "locality", "ville"},
	"country":      {"nation", "pays"},
	"state":        {"province", "region"},
}
