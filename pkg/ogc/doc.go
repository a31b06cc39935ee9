// Package ogc talks to OGC web map services on behalf of WMS layer records.
// It builds GetLegendGraphic urls for legend images and issues GetFeatureInfo
// requests sized from the current map view.
package ogc
