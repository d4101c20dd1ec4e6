package ai

import "fmt"

// Food categories produced by the plate detector.
const (
	CategorySoup     = "soup"
	CategoryMainDish = "main-dish"
	CategorySideDish = "side-dish"
	CategoryExtra    = "extra"
)

// Waste labels. They are used as path segments in artifact keys.
const (
	WasteLabelNotWasted = "not-wasted"
	WasteLabelWasted    = "wasted"
)

// notWastedIndex is the waste classifier output that means the plate was finished.
const notWastedIndex = 1

// PlateClasses maps detector class indices to food categories.
var PlateClasses = []string{
	CategorySoup,
	CategoryMainDish,
	CategorySideDish,
	CategoryExtra,
}

// FoodTypes maps classifier output indices to dish names, per category.
var FoodTypes = map[string]map[int]string{
	CategorySoup: {
		0: "lentil-soup",
		1: "vermicelli-soup",
		2: "tarhana-soup",
		3: "yogurt-soup",
	},
	CategoryMainDish: {
		0: "borlotti-beans",
		1: "peas",
		2: "sauteed-meat",
		3: "zucchini",
		4: "cheddar-meatballs",
		5: "white-beans",
		6: "chicken-with-vegetables",
	},
	CategorySideDish: {
		0: "bulgur",
		1: "fusilli",
		2: "egg-noodles",
		3: "fettuccine",
		4: "rice-pilaf",
		5: "spaghetti",
	},
	CategoryExtra: {
		0: "carrot-salad",
		1: "purple-yogurt",
		2: "yogurt",
	},
}

// TypeModels names the dish type classifier for each category.
var TypeModels = map[string]string{
	CategoryMainDish: "wiseMainTypeCls-yolo5.onnx",
	CategorySoup:     "wiseTypeSoup.onnx",
	CategoryExtra:    "wiseExtraTypeCls-yolo5.onnx",
	CategorySideDish: "wiseSideTypeCls-yolo5.onnx",
}

// WasteModels names the waste classifier for each category.
var WasteModels = map[string]string{
	CategoryMainDish: "wiseMainCls-yolo5.onnx",
	CategorySoup:     "wiseSoup.onnx",
	CategoryExtra:    "wiseExtraCls-yolo5.onnx",
	CategorySideDish: "wiseSideCls-yolo5.onnx",
}

// PlateCategory returns the category for a detector class index, or a
// placeholder name that no classifier knows.
func PlateCategory(classID int) string {
	if classID >= 0 && classID < len(PlateClasses) {
		return PlateClasses[classID]
	}
	return fmt.Sprintf("class_%d", classID)
}

// IsKnownCategory reports whether both classifiers exist for the category.
func IsKnownCategory(category string) bool {
	_, hasType := TypeModels[category]
	_, hasWaste := WasteModels[category]
	return hasType && hasWaste
}

// FoodTypeLabel maps a type classifier index to a dish name.
func FoodTypeLabel(category string, index int) string {
	if label, ok := FoodTypes[category][index]; ok {
		return label
	}
	return fmt.Sprintf("type_%d", index)
}

// WasteLabel maps a waste classifier index to its label.
func WasteLabel(index int) string {
	if index == notWastedIndex {
		return WasteLabelNotWasted
	}
	return WasteLabelWasted
}
