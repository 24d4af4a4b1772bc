// Package rdf holds the vocabulary IRIs the scanner reads and writes.
package rdf

// Well-known vocabularies.
const (
	Type           = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	FileDataObject = "http://www.semanticdesktop.org/ontologies/2007/03/22/nfo#FileDataObject"
	DataSource     = "http://www.semanticdesktop.org/ontologies/2007/01/19/nie#dataSource"
	MuUUID         = "http://mu.semte.ch/vocabularies/core/uuid"
	XSDDateTime    = "http://www.w3.org/2001/XMLSchema#dateTime"
)

// Scanner extension vocabulary for malware-analysis records.
const (
	MalwareAnalysis = "http://mu.semte.ch/vocabularies/ext/MalwareAnalysis"
	AnalysisStarted = "http://mu.semte.ch/vocabularies/ext/analysisStarted"
	AnalysisEnded   = "http://mu.semte.ch/vocabularies/ext/analysisEnded"
	AnalysisResult  = "http://mu.semte.ch/vocabularies/ext/analysisResult"
	AnalysisSample  = "http://mu.semte.ch/vocabularies/ext/analysisSample"
	SignatureName   = "http://mu.semte.ch/vocabularies/ext/signatureName"
)
