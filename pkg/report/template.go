package report

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Drive Health Report - Run #{{.Run.ID}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 1200px;
            margin: 0 auto;
            padding: 20px;
            background-color: #f5f5f5;
        }
        .container {
            background-color: white;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            padding: 30px;
        }
        h1, h2, h3 {
            color: #2c3e50;
        }
        .header {
            border-bottom: 3px solid #2563EB;
            padding-bottom: 20px;
            margin-bottom: 30px;
        }
        .status {
            display: inline-block;
            padding: 5px 15px;
            border-radius: 4px;
            font-weight: bold;
            text-transform: uppercase;
        }
        .status.success {
            background-color: #10B981;
            color: white;
        }
        .status.failure {
            background-color: #EF4444;
            color: white;
        }
        .info-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin: 20px 0;
        }
        .info-card {
            background-color: #f8f9fa;
            padding: 15px;
            border-radius: 4px;
            border-left: 4px solid #2563EB;
        }
        .info-card h3 {
            margin: 0 0 10px 0;
            color: #666;
            font-size: 0.9em;
            text-transform: uppercase;
        }
        .info-card p {
            margin: 0;
            font-size: 1.1em;
            font-weight: 500;
        }
        .metrics-section {
            margin: 30px 0;
        }
        .metric-group {
            margin-bottom: 25px;
        }
        .metric-group h3 {
            background-color: #f0f0f0;
            padding: 10px;
            margin: 0 0 15px 0;
            border-radius: 4px;
        }
        .metrics-table {
            width: 100%;
            border-collapse: collapse;
        }
        .metrics-table th,
        .metrics-table td {
            padding: 10px;
            text-align: left;
            border-bottom: 1px solid #e0e0e0;
        }
        .metrics-table th {
            background-color: #f8f9fa;
            font-weight: 600;
            color: #666;
        }
        .metrics-table tr.failing td {
            background-color: #FEE;
            color: #C00;
        }
        .footer {
            margin-top: 40px;
            padding-top: 20px;
            border-top: 1px solid #e0e0e0;
            text-align: center;
            color: #666;
            font-size: 0.9em;
        }
        .error-section {
            background-color: #FEE;
            border: 1px solid #FCC;
            border-radius: 4px;
            padding: 15px;
            margin: 20px 0;
        }
        .error-section h3 {
            color: #C00;
            margin-top: 0;
        }
        pre {
            background-color: #f4f4f4;
            padding: 10px;
            border-radius: 4px;
            overflow-x: auto;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Drive Health Report</h1>
            <p>Run ID: #{{.Run.ID}} | Check: {{.Check}}{{if .Device.Path}} | Device: {{.Device.Path}}{{end}} |
               Status: <span class="status {{statusClass .Run.Success}}">{{statusText .Run.Success}}</span>
            </p>
        </div>

        <div class="info-grid">
            {{if .Device.Model}}
            <div class="info-card">
                <h3>Model</h3>
                <p>{{.Device.Model}}</p>
            </div>
            <div class="info-card">
                <h3>Serial / Firmware</h3>
                <p>{{.Device.Serial}} / {{.Device.Firmware}}</p>
            </div>
            <div class="info-card">
                <h3>Interface</h3>
                <p>{{.Device.Variant}}</p>
            </div>
            {{end}}
            <div class="info-card">
                <h3>Start Time</h3>
                <p>{{formatTime .Run.StartTime}}</p>
            </div>
            <div class="info-card">
                <h3>Duration</h3>
                <p>{{if .Run.EndTime}}{{formatDuration .Run.Duration}}{{else}}Still Running{{end}}</p>
            </div>
            <div class="info-card">
                <h3>Host</h3>
                <p>{{.Host.Hostname}}{{if .Host.Platform}} ({{.Host.Platform}}){{end}}</p>
            </div>
        </div>

        {{if .Run.Error}}
        <div class="error-section">
            <h3>Error Details</h3>
            <pre>{{.Run.Error}}</pre>
        </div>
        {{end}}

        {{if .Run.Findings}}
        <div class="error-section">
            <h3>Findings</h3>
            <ul>
                {{range .Run.Findings}}<li>{{.}}</li>{{end}}
            </ul>
        </div>
        {{end}}

        {{if .Run.Params}}
        <div class="metrics-section">
            <h2>Parameters</h2>
            <table class="metrics-table">
                <thead>
                    <tr>
                        <th>Parameter</th>
                        <th>Value</th>
                    </tr>
                </thead>
                <tbody>
                    {{range $key, $value := .Run.Params}}
                    <tr>
                        <td>{{$key}}</td>
                        <td>{{$value}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        {{if .Attributes}}
        <div class="metrics-section">
            <h2>SMART Attributes</h2>
            <table class="metrics-table">
                <thead>
                    <tr>
                        <th>ID</th>
                        <th>Attribute</th>
                        <th>Current</th>
                        <th>Worst</th>
                        <th>Threshold</th>
                        <th>Raw</th>
                    </tr>
                </thead>
                <tbody>
                    {{range .Attributes}}
                    <tr{{if .Failing}} class="failing"{{end}}>
                        <td>{{.ID}}</td>
                        <td>{{.Name}}</td>
                        <td>{{.Current}}</td>
                        <td>{{.Worst}}</td>
                        <td>{{.Threshold}}</td>
                        <td>{{.Raw}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        <div class="metrics-section">
            <h2>Results</h2>
            {{range .MetricGroups}}
            <div class="metric-group">
                <h3>{{.Name}}</h3>
                <table class="metrics-table">
                    <thead>
                        <tr>
                            <th>Metric</th>
                            <th>Value</th>
                            <th>Unit</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Metrics}}
                        <tr>
                            <td>{{.Name}}</td>
                            <td>{{.Value}}</td>
                            <td>{{.Unit}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>

        <div class="footer">
            <p>Generated by drivecheck on {{formatTime .GeneratedAt}}</p>
        </div>
    </div>
</body>
</html>
`
