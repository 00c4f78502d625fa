package azure

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/juju/errors"
)

// LoadDeploymentProperties reads an ARM template and an optional parameter
// file and applies overrides on top of the file's parameters. Deployments
// are always incremental.
func LoadDeploymentProperties(templatePath, parametersPath string, overrides map[string]any) (*armresources.DeploymentProperties, error) {
	template, err := readJSONObject(templatePath)
	if err != nil {
		return nil, errors.Annotate(err, "reading template")
	}

	params := make(map[string]any)
	if parametersPath != "" {
		doc, err := readJSONObject(parametersPath)
		if err != nil {
			return nil, errors.Annotate(err, "reading parameters")
		}
		// Parameter files wrap the values in a "parameters" object next to
		// "$schema" and "contentVersion"; bare objects are accepted too.
		if inner, ok := doc["parameters"].(map[string]any); ok {
			doc = inner
		}
		for name, value := range doc {
			params[name] = value
		}
	}
	for name, value := range overrides {
		params[name] = map[string]any{"value": value}
	}

	return &armresources.DeploymentProperties{
		Mode:       to.Ptr(armresources.DeploymentModeIncremental),
		Template:   template,
		Parameters: params,
	}, nil
}

func readJSONObject(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.NotValidf("%s: %v", path, err)
	}
	if doc == nil {
		return nil, errors.NotValidf("%s: not a JSON object", path)
	}
	return doc, nil
}
