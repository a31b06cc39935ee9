// Package arcgis talks to ArcGIS map and feature server REST endpoints on
// behalf of the layer core. It provides the JSON requester used for feature
// counts, the symbology service that turns legends and renderers into
// symbols, the attribute loader behind feature classes, and the server side
// identify used by dynamic layers.
package arcgis
