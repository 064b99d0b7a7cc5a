package storage

import (
	"fmt"
	"regexp"
	"strconv"
)

var partitionPattern = regexp.MustCompile(`^responses_[1-9][0-9]{0,18}$`)

// PartitionName returns the response table name for a survey. Only names
// that match the allow-list pattern are ever returned.
func PartitionName(surveyID int64) (string, error) {
	if surveyID <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidSurveyID, surveyID)
	}
	name := "responses_" + strconv.FormatInt(surveyID, 10)
	if !partitionPattern.MatchString(name) {
		return "", fmt.Errorf("%w: %d", ErrInvalidSurveyID, surveyID)
	}
	return name, nil
}

// DirName returns the directory name that holds a survey's files.
func DirName(surveyID int64) (string, error) {
	if surveyID <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidSurveyID, surveyID)
	}
	return strconv.FormatInt(surveyID, 10), nil
}

// ProcessedComponentsName returns the file name of a survey's processed
// components artifact.
func ProcessedComponentsName(surveyID int64) (string, error) {
	dir, err := DirName(surveyID)
	if err != nil {
		return "", err
	}
	return "processed_" + dir + ".json", nil
}
